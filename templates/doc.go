// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package templates provides reusable choice sets for proposals.
//
// Three templates are built in: yes_no, moscow and one_to_five. Load
// extends them from a YAML file of the same shape:
//
//	templates:
//	  - name: lunch
//	    title: Lunch
//	    choices:
//	      - {text: Pizza, priority: 1}
//	      - {text: Sushi, priority: 2}
package templates
