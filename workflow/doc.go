// Package workflow validates workflow graphs and loads them from YAML.
//
// A workflow is a static set of steps with optional dependency edges and
// runtime conditions; the orchestrator interprets it. Validate rejects
// definitions the orchestrator could never finish (unknown dependencies,
// cycles, duplicate ids) before they are registered.
//
// Definitions can be written in YAML:
//
//	id: menu-launch
//	name: Menu launch
//	steps:
//	  - id: audit
//	    task_type: allergen_check
//	    agent_role: menu-auditor
//	    when:
//	      equals: {launch: "yes"}
//	  - id: plan
//	    task_type: business_strategy
//	    depends_on: [audit]
package workflow
