// Toolagent - Endpoint Tool Installation and Supervision Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/toolagent

/*
Package config loads agent configuration with Koanf v2.

# Configuration Sources

Sources are layered, later layers overriding earlier ones:

 1. Built-in defaults (defaultConfig)
 2. YAML file: $CONFIG_PATH, ./config.yaml, or /etc/toolagent/config.yaml
 3. Environment variables, through an explicit mapping table

Only mapped environment variables are read. The most common ones:

	TOOLAGENT_DATA_DIR  - application-support root (default: /var/lib/toolagent)
	BUS_URL             - bus endpoint, e.g. wss://bus.example.com/ws/nats
	API_BASE_URL        - management server, also ${client.serverUrl}
	MACHINE_ID_FILE     - machine identifier written at registration
	TOKEN_FILE          - bearer token file
	SHARED_SECRET       - value for ${client.sharedSecret}
	RESTART_DELAY       - delay before a tool is restarted (default: 5s)
	LOG_LEVEL           - trace, debug, info, warn, error (default: info)

# Example config.yaml

	agent:
	  data_dir: /var/lib/toolagent
	  store_gc_interval: 10m   # 0 disables value-log GC
	bus:
	  url: wss://bus.example.com/ws/nats
	  redelivery_delay: 10s
	api:
	  base_url: https://api.example.com
	credentials:
	  machine_id_file: /etc/toolagent/machine-id
	  token_file: /etc/toolagent/token
	runner:
	  restart_delay: 5s

Durations use Go syntax (5s, 10m). Load validates the merged result and
returns a descriptive error naming the offending variable.
*/
package config
