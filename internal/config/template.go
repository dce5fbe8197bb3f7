package config

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"
)

func GenerateTemplateConfig(writeToFile bool) (Config, error) {
	cfg := Config{
		LogLevel: "info",

		DefaultAction: "ACCEPT",
		ATMode:        "absolute",
		Backend:       BackendNative,
		CacheSize:     128,

		StatsFile:     "stats",
		StatsInterval: 10 * time.Second,

		Rules: []Rule{
			{
				Name:   "dns",
				Type:   string(RuleTypeU32),
				Match:  "0 >> 22 & 0x3C @ 0 >> 16 = 53 || 0 >> 22 & 0x3C @ 0 & 0xFFFF = 53",
				Action: "LOG",
			},
			{
				Name:            "ssh",
				Type:            string(RuleTypeTCP),
				DestinationPort: "22",
				Action:          "ACCEPT",
			},
			{
				Name:       "privileged-udp",
				Type:       string(RuleTypeUDP),
				SourcePort: "!1:1023",
				Action:     "DROP",
			},
			{
				Type:   string(RuleTypeFinal),
				Action: "ACCEPT",
			},
		},
	}

	if writeToFile {
		data, err := yaml.Marshal(&cfg)
		if err != nil {
			return Config{}, fmt.Errorf("failed to marshal template config to YAML: %w", err)
		}
		if err := os.WriteFile("config.yaml", data, 0644); err != nil {
			return Config{}, fmt.Errorf("failed to write template config to file: %w", err)
		}
	}
	return cfg, nil
}
