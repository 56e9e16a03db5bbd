// Package harness runs query scenarios against a seeded database and checks
// the statements the engine issues.
//
// A scenario names a CUE model, a YAML dataset and a list of steps. Each
// step runs one query as a fresh execution, touches lazy paths on the
// returned roots and snapshots them.
//
// # Scenario Format
//
//	name: scenario_name
//	description: "What this scenario validates"
//	model: ../model.cue
//	dataset: ../dataset.yaml
//	config:
//	  lazy_batch_size: 5
//	steps:
//	  - query:
//	      type: Customer
//	      select: [id, name]
//	      joins:
//	        - path: contacts
//	          mode: lazy
//	    touch: [contacts]
//	    expect:
//	      count: 3
//	      has_more: false
//	      beans:
//	        - {id: 1, name: Acme}
//	assertions:
//	  - type: statement_count
//	    path: contacts
//	    count: 1
//	  - type: statement_contains
//	    sql: "WHERE t0.customer_id IN"
//	  - type: statement_order
//	    paths: ["", contacts]
//
// Model and dataset paths are relative to the scenario file. The config
// block uses the same keys as the engine config file.
//
// # Assertion Types
//
//   - statement_count: exactly N statements, optionally on one load path
//   - statement_contains: some statement's SQL contains a fragment, with
//     optional path and exact args
//   - statement_order: load paths first appear in the given order
//
// The primary statement of a query has the empty path.
//
// # Deterministic Testing
//
// Every run uses a fresh in-memory SQLite database, a step clock and
// sequential execution ids (exec-0001, exec-0002...), so the same scenario
// always yields the same trace. RunWithGolden compares that trace with
// testdata/golden/{name}.golden; pass -update to regenerate.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/eager_contacts.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
