// cmd/tools/registry-updater/main.go
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"trial-matcher/pkg/registry"
)

const defaultRegistryPath = "pkg/registry/activities.json"

var errUsage = errors.New("invalid usage")

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// run dispatches one subcommand. Results go to out; failures come back as
// errors so main owns the exit code.
func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		help(out)
		return errUsage
	}

	switch args[0] {
	case "add":
		return runAdd(args[1:], out)
	case "update":
		return runUpdate(args[1:], out)
	case "list":
		return runList(args[1:], out)
	case "validate":
		return runValidate(args[1:], out)
	case "check":
		return runCheck(args[1:], out)
	default:
		help(out)
		return nil
	}
}

func newFlagSet(name string, out io.Writer) (*flag.FlagSet, *string) {
	cmd := flag.NewFlagSet(name, flag.ContinueOnError)
	cmd.SetOutput(out)
	path := cmd.String("path", defaultRegistryPath, "Path to registry file")
	return cmd, path
}

func runAdd(args []string, out io.Writer) error {
	cmd, path := newFlagSet("add", out)
	id := cmd.String("id", "", "Activity ID (e.g., rank-matches)")
	displayName := cmd.String("displayName", "", "Display Name (e.g., Rank Matches)")
	description := cmd.String("description", "", "Description")
	category := cmd.String("category", "", "Category (e.g., matching)")
	taskType := cmd.String("taskType", "", "Camunda Task Type (defaults to id)")
	version := cmd.String("version", "1.0.0", "Version")
	status := cmd.String("status", "planned", "Implementation Status (planned, in-progress, completed, verified)")
	timeout := cmd.String("timeout", "30s", "Job timeout")
	retries := cmd.Int("retries", 2, "Job retries")
	if err := cmd.Parse(args); err != nil {
		return errUsage
	}

	if *taskType == "" {
		*taskType = *id
	}
	if *id == "" || *displayName == "" || *category == "" {
		fmt.Fprintln(out, "id, displayName and category are required for add.")
		cmd.Usage()
		return errUsage
	}

	activity := registry.Activity{
		ID:                   *id,
		DisplayName:          *displayName,
		Description:          *description,
		Category:             *category,
		Version:              *version,
		TaskType:             *taskType,
		ImplementationStatus: *status,
		InputSchema:          map[string]interface{}{},
		OutputSchema:         map[string]interface{}{},
		ErrorCodes:           []string{},
		Timeout:              *timeout,
		Retries:              *retries,
		Workflows:            []string{},
		Tags:                 []string{},
	}
	if err := addActivity(*path, activity); err != nil {
		return err
	}
	fmt.Fprintf(out, "Added activity: %s\n", activity.ID)
	return nil
}

func runUpdate(args []string, out io.Writer) error {
	cmd, path := newFlagSet("update", out)
	id := cmd.String("id", "", "Activity ID to update")
	field := cmd.String("field", "", "Field to update (status, version, timeout, retries, ...)")
	value := cmd.String("value", "", "New value for the field")
	if err := cmd.Parse(args); err != nil {
		return errUsage
	}
	if *id == "" || *field == "" || *value == "" {
		fmt.Fprintln(out, "id, field and value are required for update.")
		cmd.Usage()
		return errUsage
	}

	if err := updateActivity(*path, *id, *field, *value); err != nil {
		return err
	}
	fmt.Fprintf(out, "Updated activity %s, field %s to %s\n", *id, *field, *value)
	return nil
}

func runList(args []string, out io.Writer) error {
	cmd, path := newFlagSet("list", out)
	if err := cmd.Parse(args); err != nil {
		return errUsage
	}

	reg, err := registry.LoadRegistry(*path)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}
	for _, a := range reg.Activities {
		fmt.Fprintf(out, "%-20s %-20s %-8s %-12s %s\n", a.ID, a.TaskType, a.Version, a.ImplementationStatus, a.Timeout)
	}
	return nil
}

func runValidate(args []string, out io.Writer) error {
	cmd, path := newFlagSet("validate", out)
	if err := cmd.Parse(args); err != nil {
		return errUsage
	}

	n, err := validateRegistry(*path)
	if err != nil {
		return fmt.Errorf("registry validation failed: %w", err)
	}
	fmt.Fprintf(out, "Registry validation passed. Found %d activities.\n", n)
	return nil
}

func runCheck(args []string, out io.Writer) error {
	cmd, path := newFlagSet("check", out)
	taskType := cmd.String("taskType", "", "Task type whose input schema is applied")
	varsPath := cmd.String("vars", "", "JSON file holding the job variables")
	if err := cmd.Parse(args); err != nil {
		return errUsage
	}
	if *taskType == "" || *varsPath == "" {
		fmt.Fprintln(out, "taskType and vars are required for check.")
		cmd.Usage()
		return errUsage
	}

	violations, err := checkVariables(*path, *taskType, *varsPath)
	if err != nil {
		return err
	}
	if len(violations) > 0 {
		for _, v := range violations {
			fmt.Fprintf(out, "  %s: %s\n", v.Field, v.Message)
		}
		return fmt.Errorf("%d schema violations: %s", len(violations), registry.Summarize(violations))
	}
	fmt.Fprintf(out, "Variables satisfy the %s input schema.\n", *taskType)
	return nil
}

// addActivity appends a new activity, creating the registry file when it
// does not exist yet. The result must still pass registry validation.
func addActivity(path string, activity registry.Activity) error {
	reg, err := registry.LoadRegistry(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		reg = &registry.ActivityRegistry{Version: "1.0.0"}
	case err != nil:
		return fmt.Errorf("failed to load registry: %w", err)
	}

	if _, err := reg.Find(activity.ID); err == nil {
		return fmt.Errorf("activity with ID %s already exists", activity.ID)
	}

	reg.Activities = append(reg.Activities, activity)
	if err := reg.Validate(); err != nil {
		return err
	}
	return saveRegistry(reg, path)
}

var activitySetters = map[string]func(a *registry.Activity, value string) error{
	"status":      func(a *registry.Activity, v string) error { a.ImplementationStatus = v; return nil },
	"version":     func(a *registry.Activity, v string) error { a.Version = v; return nil },
	"displayName": func(a *registry.Activity, v string) error { a.DisplayName = v; return nil },
	"description": func(a *registry.Activity, v string) error { a.Description = v; return nil },
	"category":    func(a *registry.Activity, v string) error { a.Category = v; return nil },
	"taskType":    func(a *registry.Activity, v string) error { a.TaskType = v; return nil },
	"timeout":     setTimeout,
	"retries":     setRetries,
}

func setTimeout(a *registry.Activity, v string) error {
	if _, err := time.ParseDuration(v); err != nil {
		return fmt.Errorf("invalid timeout value: %w", err)
	}
	a.Timeout = v
	return nil
}

func setRetries(a *registry.Activity, v string) error {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fmt.Errorf("invalid retries value: %q", v)
	}
	a.Retries = n
	return nil
}

func updateActivity(path, id, field, value string) error {
	set, ok := activitySetters[field]
	if !ok {
		return fmt.Errorf("unknown field: %s", field)
	}

	reg, err := registry.LoadRegistry(path)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	idx := -1
	for i := range reg.Activities {
		if reg.Activities[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("activity with ID %s not found", id)
	}

	if err := set(&reg.Activities[idx], value); err != nil {
		return err
	}
	return saveRegistry(reg, path)
}

func validateRegistry(path string) (int, error) {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		return 0, fmt.Errorf("failed to load registry: %w", err)
	}
	if err := reg.Validate(); err != nil {
		return 0, err
	}
	return len(reg.Activities), nil
}

func checkVariables(path, taskType, varsPath string) ([]registry.SchemaViolation, error) {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load registry: %w", err)
	}
	activity, err := reg.Find(taskType)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(varsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read variables: %w", err)
	}
	var variables map[string]interface{}
	if err := json.Unmarshal(data, &variables); err != nil {
		return nil, fmt.Errorf("failed to parse variables: %w", err)
	}
	return activity.ValidateInput(variables)
}

// saveRegistry stamps LastUpdated and writes the registry as indented JSON.
func saveRegistry(reg *registry.ActivityRegistry, path string) error {
	reg.LastUpdated = time.Now().UTC().Format(time.RFC3339)

	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write registry file: %w", err)
	}
	return nil
}

func help(out io.Writer) {
	fmt.Fprint(out, `
Usage: registry-updater <command> [flags]

Commands:
  add      Add a new activity to the registry
  update   Update an existing activity's field
  list     List activities with task type, version, status and timeout
  validate Validate the registry file
  check    Check a job variables file against a task's input schema
  help     Show this help message

Examples:
  registry-updater add -id rank-matches -displayName "Rank Matches" -category matching
  registry-updater update -id match-trials -field timeout -value 180s
  registry-updater list
  registry-updater validate -path pkg/registry/activities.json
  registry-updater check -taskType match-trials -vars testdata/match-trials.json

Use 'registry-updater <command> -h' for more information about a command.
`)
}
