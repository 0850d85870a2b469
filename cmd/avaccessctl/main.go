// Package main is the entry point for avaccessctl, a tool that validates
// access policy files and evaluates test requests against them.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/vyrodovalexey/avaccess/config"
	"github.com/vyrodovalexey/avaccess/observability"
	"github.com/vyrodovalexey/avaccess/policy"
)

// Version information (set at build time).
var (
	version   = "dev"
	gitCommit = "unknown"
)

// Exit codes.
const (
	exitAllowed = 0
	exitDenied  = 1
	exitError   = 2
)

// cliFlags holds command line flags.
type cliFlags struct {
	policyPath   string
	logLevel     string
	logFormat    string
	subject      string
	groups       string
	anonymous    bool
	action       string
	method       string
	validateOnly bool
	showVersion  bool
}

func main() {
	os.Exit(run())
}

func run() int {
	flags := parseFlags()

	if flags.showVersion {
		fmt.Printf("avaccessctl %s (%s)\n", version, gitCommit)
		return exitAllowed
	}

	logger := initLogger(flags)
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load(flags.policyPath)
	if err != nil {
		logger.Error("failed to load policy file", observability.Error(err))
		return exitError
	}

	if flags.validateOnly {
		fmt.Printf("policy file %s is valid (%d statements)\n", flags.policyPath, len(cfg.Statements))
		return exitAllowed
	}

	if flags.action == "" {
		logger.Error("an action is required, pass -action")
		return exitError
	}

	engine, err := policy.NewEngine(cfg, policy.WithEngineLogger(logger))
	if err != nil {
		logger.Error("failed to create engine", observability.Error(err))
		return exitError
	}
	defer func() { _ = engine.Close() }()

	decision, err := engine.Evaluate(context.Background(), buildRequest(flags))
	if err != nil {
		logger.Error("evaluation failed", observability.Error(err))
		return exitError
	}

	printDecision(decision)
	if decision.Allowed {
		return exitAllowed
	}
	return exitDenied
}

// parseFlags parses command line flags.
func parseFlags() cliFlags {
	policyPath := flag.String("policy", getEnvOrDefault("AVACCESS_POLICY_PATH", "policy.yaml"),
		"Path to the policy file")
	logLevel := flag.String("log-level", getEnvOrDefault("AVACCESS_LOG_LEVEL", "info"),
		"Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", getEnvOrDefault("AVACCESS_LOG_FORMAT", "console"),
		"Log format (json, console)")
	subject := flag.String("subject", "", "Requester identity")
	groups := flag.String("groups", "", "Comma-separated requester groups")
	anonymous := flag.Bool("anonymous", false, "Evaluate as the anonymous requester")
	action := flag.String("action", "", "Action name to evaluate")
	method := flag.String("method", "GET", "Request method for the <safe_methods> shorthand")
	validateOnly := flag.Bool("validate", false, "Only validate the policy file")
	showVersion := flag.Bool("version", false, "Show version information")

	flag.Parse()

	return cliFlags{
		policyPath:   *policyPath,
		logLevel:     *logLevel,
		logFormat:    *logFormat,
		subject:      *subject,
		groups:       *groups,
		anonymous:    *anonymous,
		action:       *action,
		method:       *method,
		validateOnly: *validateOnly,
		showVersion:  *showVersion,
	}
}

// initLogger initializes the logger from flags.
func initLogger(flags cliFlags) observability.Logger {
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  flags.logLevel,
		Format: flags.logFormat,
		Output: "stderr",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(exitError)
	}
	return logger
}

// buildRequest builds the evaluation request from flags.
func buildRequest(flags cliFlags) *policy.Request {
	principal := policy.AnonymousPrincipal()
	if !flags.anonymous && flags.subject != "" {
		principal = &policy.PrincipalContext{
			Subject: flags.subject,
			Groups:  splitGroups(flags.groups),
		}
	}

	return &policy.Request{
		Principal: principal,
		Action:    flags.action,
		Method:    flags.method,
	}
}

// splitGroups splits a comma-separated group list.
func splitGroups(groups string) []string {
	if groups == "" {
		return nil
	}
	parts := strings.Split(groups, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// printDecision prints the decision as JSON on stdout.
func printDecision(decision *policy.Decision) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(map[string]interface{}{
		"allowed":   decision.Allowed,
		"reason":    decision.Reason,
		"statement": decision.Statement,
	})
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
