// Package config manages application configuration for the Negotiator API.
//
// Configuration is read from environment variables. When the env file (.env
// unless --env-file names another) exists it is loaded first; variables
// already exported in the process environment win over the file, which is
// how hosting platforms inject secrets.
//
//	cfg, err := config.LoadFile(config.DefaultEnvFile)
//	if err != nil { ... }
//	if err := cfg.Validate(); err != nil { ... }
//
// # Configuration Groups
//
//   - ServerConfig: bind host/port, CORS origins, rate limit, public URL
//   - LLMConfig: Groq keys (primary and fallback), model, temperature
//   - SearchConfig: SerpStack key and endpoint
//   - ReviewsConfig: WebScraping.AI and Tavily keys
//   - AgentConfig: reflexion iterations and recursion limit
//   - CheckpointConfig / DatabaseConfig: workflow checkpoint storage
//   - FrontendConfig: publish directory and API base URLs
//   - JobsConfig: keep-alive pinging
//
// # Environment Variables
//
// Key environment variables:
//
//	PORT                    - HTTP server port (default: 8000)
//	GROQ_API_KEY            - Groq key (required)
//	GROQ_API_KEY_2          - fallback Groq key
//	SERPSTACK_API_KEY       - SerpStack key (required)
//	WEBSCRAPING_AI_API_KEY  - WebScraping.AI key for review extraction
//	CORS_ALLOWED_ORIGINS    - comma separated frontend origins
//	CHECKPOINT_BACKEND      - sqlite (default) or surrealdb
//	DATABASE_PATH           - sqlite checkpoint file
package config
