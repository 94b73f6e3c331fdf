package config

import "os"

type Features struct {
	AuthEnabled      bool // bearer token on the API
	MetricsEnabled   bool
	DetectionEnabled bool // off for read-only replicas sharing a database
	PingEnabled      bool
}

func LoadFeatures() Features {
	return Features{
		AuthEnabled:      os.Getenv("AUTH_ENABLED") == "true",
		MetricsEnabled:   os.Getenv("METRICS_ENABLED") != "false",
		DetectionEnabled: os.Getenv("DETECTION_ENABLED") != "false",
		PingEnabled:      os.Getenv("PING_ENABLED") != "false",
	}
}
