// Package harness runs conformance scenarios against a compiled API.
//
// A scenario names a CUE API directory, a provider, seed rows, and a list
// of steps. Each step is a query or a submit made under a set of roles:
//
//	name: current_orders
//	description: "Managers see open orders through the CurrentOrders view"
//	api: ../api
//	provider: memory
//	seed:
//	  Orders:
//	    - {Id: 1, CustomerId: 1, Amount: 100, Status: open, Owner: alice}
//	steps:
//	  - name: managers read current orders
//	    roles: [Manager]
//	    query:
//	      from: CurrentOrders
//	      order_by: ["Amount desc"]
//	      count: true
//	    expect:
//	      count: 1
//	      rows:
//	        - {Id: 1}
//	  - name: customers insert
//	    submit:
//	      - insert: Customers
//	        values: {Name: Northwind}
//	    expect:
//	      executed: true
//
// # Expectations
//
// A step passes when every expectation it names holds:
//
//   - error: the API error code the step fails with
//   - rows: the rows returned, in order; each listed field must match
//   - count: the total count (query steps with count or count_only)
//   - executed: whether the submit reached the provider's executor
//   - entries: the written resources of a submit, in entry order
//
// A step without an error expectation fails if the call fails.
//
// # Determinism
//
// Request IDs come from a sequence named after the scenario, and every run
// starts from a fresh provider. Traces are rendered as canonical JSON so
// they can be compared against golden files.
//
// # Usage
//
//	s, err := harness.LoadScenario("testdata/scenarios/current_orders.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res, err := harness.Run(ctx, s)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, msg := range res.Errors {
//	    log.Println(msg)
//	}
package harness
