// Package port resolves the TCP port the Gateway and HitL HTTP services
// bind to, auto-discovering a free port in local development while
// respecting an explicit port everywhere else (spec.md §6.4).
package port

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/zero-bot/codecoder/internal/logging"
)

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// Environment represents the deployment environment codecoder's services
// believe they are running in.
type Environment string

const (
	EnvLocal      Environment = "local"
	EnvDocker     Environment = "docker"
	EnvKubernetes Environment = "kubernetes"
	EnvProduction Environment = "production"
)

// BindConfig holds the port-resolution inputs for a single HTTP service
// (the Gateway or the HitL engine each build their own).
type BindConfig struct {
	Port         int // 0 means "auto": pick a free port in PortRange
	Host         string
	PortRange    string
	AutoDiscover bool
	Environment  Environment // auto-detected, not configurable
}

// PortStrategy describes how a PortManager resolved a bind port.
type PortStrategy struct {
	Port         int
	AutoDiscover bool
	Source       string
	Environment  Environment
}

// PortManager resolves a bind port for codecoder's HTTP services,
// favouring a fixed port in managed environments and auto-discovery on
// a developer's laptop.
type PortManager struct {
	config *BindConfig
	logger logging.Logger
}

// NewPortManager builds a PortManager from PORT/HOST/PORT_RANGE/
// AUTO_DISCOVER environment variables, for ad-hoc standalone use.
func NewPortManager(logger logging.Logger) *PortManager {
	config := &BindConfig{
		Host:         getEnvOrDefault("HOST", "0.0.0.0"),
		PortRange:    getEnvOrDefault("PORT_RANGE", "8080-8090"),
		AutoDiscover: getEnvBoolOrDefault("AUTO_DISCOVER", true),
		Environment:  detectEnvironment(),
	}

	if portEnv := os.Getenv("PORT"); portEnv != "" {
		if portEnv == "auto" {
			config.Port = 0
		} else if port, err := strconv.Atoi(portEnv); err == nil {
			config.Port = port
			config.AutoDiscover = false
		}
	}

	return &PortManager{config: config, logger: logger}
}

// NewPortManagerForBind builds a PortManager from a service's gateway.Config
// fields (spec.md §6.4) instead of reading the environment directly — the
// explicit-port-disables-auto-discovery rule still applies.
func NewPortManagerForBind(host string, explicitPort int, portRange string, logger logging.Logger) *PortManager {
	if host == "" {
		host = "0.0.0.0"
	}
	if portRange == "" {
		portRange = "8080-8090"
	}
	return &PortManager{
		config: &BindConfig{
			Host:         host,
			Port:         explicitPort,
			PortRange:    portRange,
			AutoDiscover: explicitPort == 0,
			Environment:  detectEnvironment(),
		},
		logger: logger,
	}
}

func detectEnvironment() Environment {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" ||
		os.Getenv("KUBERNETES_PORT") != "" ||
		fileExists("/var/run/secrets/kubernetes.io/serviceaccount/token") {
		return EnvKubernetes
	}

	if os.Getenv("COMPOSE_PROJECT_NAME") != "" {
		return EnvDocker
	}

	if os.Getenv("NODE_ENV") == "production" ||
		os.Getenv("GO_ENV") == "production" ||
		os.Getenv("ENVIRONMENT") == "production" {
		return EnvProduction
	}

	return EnvLocal
}

// GetPortStrategy determines the appropriate port strategy for the current
// environment: fixed ports everywhere codecoder is expected to run behind
// a reverse proxy or orchestrator, auto-discovery only on a bare laptop.
func (pm *PortManager) GetPortStrategy() PortStrategy {
	env := pm.config.Environment

	switch env {
	case EnvKubernetes:
		port := 8080
		if pm.config.Port > 0 {
			port = pm.config.Port
		}
		return PortStrategy{Port: port, AutoDiscover: false, Source: "kubernetes-fixed", Environment: env}

	case EnvDocker:
		port := 8080
		if pm.config.Port > 0 {
			port = pm.config.Port
		}
		return PortStrategy{Port: port, AutoDiscover: false, Source: "docker-compose", Environment: env}

	case EnvProduction:
		port := 8080
		if pm.config.Port > 0 {
			port = pm.config.Port
		}
		return PortStrategy{Port: port, AutoDiscover: false, Source: "production-fixed", Environment: env}

	case EnvLocal:
		if pm.config.Port > 0 {
			return PortStrategy{Port: pm.config.Port, AutoDiscover: false, Source: "explicit-port", Environment: env}
		}

		if !pm.config.AutoDiscover {
			return PortStrategy{Port: 8080, AutoDiscover: false, Source: "default-port", Environment: env}
		}

		port := pm.findAvailablePortInRange(pm.config.PortRange)
		return PortStrategy{Port: port, AutoDiscover: true, Source: "auto-discovery", Environment: env}

	default:
		return PortStrategy{Port: 8080, AutoDiscover: false, Source: "fallback", Environment: env}
	}
}

// DeterminePort returns the port a service should bind to, logging the
// strategy that produced it.
func (pm *PortManager) DeterminePort() int {
	strategy := pm.GetPortStrategy()

	pm.logger.Info("port strategy determined", map[string]interface{}{
		"port":          strategy.Port,
		"auto_discover": strategy.AutoDiscover,
		"source":        strategy.Source,
		"environment":   string(strategy.Environment),
		"host":          pm.config.Host,
	})

	return strategy.Port
}

func (pm *PortManager) findAvailablePortInRange(portRange string) int {
	start, end := pm.parsePortRange(portRange)

	for port := start; port <= end; port++ {
		if pm.isPortAvailable(port) {
			return port
		}
	}

	pm.logger.Warn("no ports available in range, finding any available port", map[string]interface{}{
		"range": portRange,
	})
	return pm.findAnyAvailablePort()
}

func (pm *PortManager) parsePortRange(portRange string) (int, int) {
	parts := strings.Split(portRange, "-")
	if len(parts) != 2 {
		pm.logger.Warn("invalid port range format, using default", map[string]interface{}{
			"range": portRange, "default": "8080-8090",
		})
		return 8080, 8090
	}

	start, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	end, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))

	if err1 != nil || err2 != nil || start > end {
		pm.logger.Warn("invalid port range values, using default", map[string]interface{}{
			"range": portRange, "default": "8080-8090",
		})
		return 8080, 8090
	}

	return start, end
}

func (pm *PortManager) isPortAvailable(port int) bool {
	address := fmt.Sprintf("%s:%d", pm.config.Host, port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return false
	}
	defer listener.Close()
	return true
}

func (pm *PortManager) findAnyAvailablePort() int {
	commonPorts := []int{8080, 8081, 8082, 8083, 8084, 8085, 8090, 8091, 8092, 8093, 8094, 8095}

	for _, port := range commonPorts {
		if pm.isPortAvailable(port) {
			return port
		}
	}

	listener, err := net.Listen("tcp", fmt.Sprintf("%s:0", pm.config.Host))
	if err != nil {
		pm.logger.Error("failed to find any available port", map[string]interface{}{"error": err.Error()})
		return 8080
	}
	defer listener.Close()

	port := listener.Addr().(*net.TCPAddr).Port
	pm.logger.Info("OS-assigned port", map[string]interface{}{"port": port})
	return port
}

// ValidatePort checks whether the determined port is actually still
// available, catching a race against another process that grabbed it
// between discovery and bind.
func (pm *PortManager) ValidatePort(port int) error {
	if !pm.isPortAvailable(port) {
		return fmt.Errorf("port %d is not available on %s", port, pm.config.Host)
	}
	return nil
}

// GetServerAddress returns the complete listen address for the given port.
func (pm *PortManager) GetServerAddress(port int) string {
	return fmt.Sprintf("%s:%d", pm.config.Host, port)
}

// GetPublicURL returns a human-facing URL for the server, substituting
// localhost for a wildcard bind host.
func (pm *PortManager) GetPublicURL(port int) string {
	host := pm.config.Host
	if host == "0.0.0.0" || host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%d", host, port)
}

func fileExists(filename string) bool {
	_, err := os.Stat(filename)
	return !os.IsNotExist(err)
}
