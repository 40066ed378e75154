package main

import (
	"fmt"
	"os"
)

const configExample = `# llm-proxy configuration. Copy to config.yaml and edit.

model_list:
  - model_name: gpt-4o
    model_params:
      api_base: https://api.openai.com/v1
      api_key: "<your-openai-api-key>"
  - model_name: gpt-4o-backup
    model_params:
      api_base: https://api.openai.com/v1
      api_key: "<your-openai-api-key>"

router_settings:
  num_retries: 2
  fallbacks:
    - gpt-4o: [gpt-4o-backup]

proxy_settings:
  server:
    host: 0.0.0.0
    port: 8000

general_settings:
  enable_responses_endpoint: true

log_level: INFO
`

// runInit generates config.example.yaml in the current directory.
func runInit() error {
	const filename = "config.example.yaml"

	if err := os.WriteFile(filename, []byte(configExample), 0644); err != nil {
		return fmt.Errorf("write %s: %w", filename, err)
	}

	fmt.Printf("wrote %s\n", filename)
	fmt.Println("next steps:")
	fmt.Println("  1. cp config.example.yaml config.yaml")
	fmt.Println("  2. edit config.yaml: set api_base/api_key for each backend")
	fmt.Println("  3. ./llm-proxy --config config.yaml")

	return nil
}
