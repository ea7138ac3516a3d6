// Package config loads and validates the defender configuration tree.
//
// The expected YAML shape:
//
//	defender:
//	  command:
//	    payment-api:
//	      circuit-breaker:
//	        max-failures: 5
//	        call-timeout: 200ms
//	        reset-timeout: 5s
//	      dispatcher: payment-pool
//	  dispatcher:
//	    payment-pool:
//	      size: 8
//	  logging:
//	    level: info
//
// Unknown keys are ignored. Command keys absent from the file get the
// built-in defaults (max-failures 5, call-timeout 1s, reset-timeout 5s,
// shared dispatcher). Settings are resolved once per key and immutable
// afterwards.
package config
