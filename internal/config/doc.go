// Package config loads the JSON configuration shared by marketd and
// marketctl: API and metrics listeners, logging, chain endpoints, deployment
// records, orchestrator defaults and the job pipeline backends.
package config
