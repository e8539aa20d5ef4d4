// Package fixtures provides test data factories.
//
// Place and State build values with sensible defaults that option functions
// override:
//
//	p := fixtures.Place(fixtures.WithName("Iron Temple"), fixtures.WithRating(4.8, 300))
//	s := fixtures.State(fixtures.WithPlaces(p))
//
// A Factory persists whole threads through any checkpoint saver, usually a
// repository.CheckpointRepository over a testdb database:
//
//	f := fixtures.New(repo)
//	s := f.CreateThread(t, []string{"understand", "search"})
//
// Names and thread IDs are random so tests can share a database.
package fixtures
