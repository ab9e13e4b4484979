// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command spike runs the hybrid tool router.
//
// Usage:
//
//	spike serve [--addr 127.0.0.1:8420] [--debug]
//	spike route "set an alarm for 7:30 pm"
//	spike tools [--json]
//
// Configuration comes from the environment:
//
//	OLLAMA_BASE_URL       On-device model server (default http://localhost:11434)
//	SPIKE_ONDEVICE_MODEL  On-device model (default functiongemma:270m)
//	GEMINI_API_KEY        Enables cloud fallback and transcription
//	GEMINI_MODEL          Cloud model (default gemini-2.5-flash)
//	SPIKE_CLOUD_QPS       Cloud request rate limit, 0 for none
//	SPIKE_JOURNAL_DIR     Enables the decision journal
//	SPIKE_TOOLS_FILE      Replaces the embedded tool table
//	SPIKE_TRACE_STDOUT    Exports spans to stderr when "true"
//	SPIKE_LISTEN_ADDR     Bridge listen address
//	SPIKE_REQUEST_QPS     Bridge request rate limit, 0 for none
//
// Example requests:
//
//	curl http://127.0.0.1:8420/health
//
//	curl -X POST http://127.0.0.1:8420/v1/route \
//	  -H "Content-Type: application/json" \
//	  -d '{"text": "open safari and type hello"}'
//
//	curl -X POST http://127.0.0.1:8420/v1/transcribe_and_act \
//	  -F audio=@clip.wav
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "spike:", err)
		os.Exit(1)
	}
}
