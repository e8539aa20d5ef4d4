// Package agent runs the negotiator workflow as a checkpointed state graph.
//
// A Graph is a set of named steps (NodeFunc) joined by fixed or conditional
// edges. Compiling it against a Checkpointer yields a Runner, which executes
// one step at a time and saves a snapshot of the AgentState after each. A
// run stops when it reaches End, fails, or arrives at an interrupt, in which
// case it is left in the awaiting_approval status and can be continued with
// Resume.
//
// NewWorkflow wires the negotiator steps:
//
//	understand      extract city, place type, budget and route from the query
//	search          find candidate places
//	gather_reviews  fetch reviews for the best rated candidates
//	analyze         score every candidate
//	human_review    pause for approval (skipped with AutoApprove)
//	contact_shops   ask the top candidates for prices
//	reflect         rescore with quoted prices and loop while undecided
//	recommend       rank and pick one winner
//
// The external tools are reached through the small interfaces in tools.go so
// the workflow can be tested with in-memory fakes.
package agent
