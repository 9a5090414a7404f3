package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wildeconsulting/kwsub/internal/debug"
	"github.com/wildeconsulting/kwsub/internal/ui"
)

// managedHooks are the git hooks kwsub installs, in install order.
var managedHooks = []string{"pre-commit", "post-commit", "post-merge"}

// Section markers delimit the part of a hook file kwsub owns. User content
// outside the markers is preserved across installs and upgrades.
const hookSectionBeginPrefix = "# --- BEGIN KWSUB INTEGRATION"
const hookSectionEnd = "# --- END KWSUB INTEGRATION ---"

// errHeadersUpdated fails a commit whose files were rewritten after they
// were staged, so the developer can review and stage the new headers.
var errHeadersUpdated = errors.New("header blocks updated: stage the changes and commit again")

// hookSectionBeginLine returns the full begin marker line with the current version.
func hookSectionBeginLine() string {
	return fmt.Sprintf("%s v%s ---", hookSectionBeginPrefix, Version)
}

// generateHookSection returns the marked section for hookName. It runs
// 'kwsub hooks run' and propagates a failure, leaving any user content after
// the section to run on success.
func generateHookSection(hookName string) string {
	return hookSectionBeginLine() + "\n" +
		"# This section is managed by kwsub. Do not remove these markers.\n" +
		"if command -v kwsub >/dev/null 2>&1; then\n" +
		"  kwsub hooks run " + hookName + " \"$@\"\n" +
		"  _kwsub_exit=$?; if [ $_kwsub_exit -ne 0 ]; then exit $_kwsub_exit; fi\n" +
		"fi\n" +
		hookSectionEnd + "\n"
}

// sectionBounds returns the byte range of the marked section, from the start
// of the begin-marker line to just past the end-marker line.
func sectionBounds(content string) (start, end int, ok bool) {
	beginIdx := strings.Index(content, hookSectionBeginPrefix)
	endIdx := strings.Index(content, hookSectionEnd)
	if beginIdx == -1 || endIdx == -1 || beginIdx > endIdx {
		return 0, 0, false
	}

	start = strings.LastIndex(content[:beginIdx], "\n") + 1
	end = endIdx + len(hookSectionEnd)
	if end < len(content) && content[end] == '\n' {
		end++
	}
	return start, end, true
}

// injectHookSection replaces the marked section of existing with section,
// or appends section when there is none.
func injectHookSection(existing, section string) string {
	if start, end, ok := sectionBounds(existing); ok {
		return existing[:start] + section + existing[end:]
	}

	result := existing
	if !strings.HasSuffix(result, "\n") {
		result += "\n"
	}
	return result + "\n" + section
}

// removeHookSection removes the marked section and a blank line before it.
// It reports whether a section was found.
func removeHookSection(content string) (string, bool) {
	start, end, ok := sectionBounds(content)
	if !ok {
		return content, false
	}
	if start >= 2 && content[start-1] == '\n' && content[start-2] == '\n' {
		start--
	}
	return content[:start] + content[end:], true
}

// HookStatus is the state of one managed hook file.
type HookStatus struct {
	Name      string
	Installed bool
	Version   string
	Outdated  bool
}

// checkHooks reports the state of every managed hook in hooksDir.
func checkHooks(hooksDir string) []HookStatus {
	statuses := make([]HookStatus, 0, len(managedHooks))
	for _, name := range managedHooks {
		status := HookStatus{Name: name}
		version, found, err := getHookVersion(filepath.Join(hooksDir, name))
		if err != nil {
			debug.Logf("hooks: reading %s: %v", name, err)
		}
		if found {
			status.Installed = true
			status.Version = version
			status.Outdated = version != Version
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// getHookVersion extracts the version from the begin marker of a hook file.
// found is false when the file is missing or has no kwsub section.
func getHookVersion(path string) (version string, found bool, err error) {
	// #nosec G304 -- hook path constrained to the hooks directory
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, hookSectionBeginPrefix) {
			continue
		}
		// "# --- BEGIN KWSUB INTEGRATION v0.4.0 ---"
		after := strings.TrimSpace(strings.TrimPrefix(line, hookSectionBeginPrefix))
		after = strings.TrimSuffix(strings.TrimPrefix(after, "v"), "---")
		return strings.TrimSpace(after), true, nil
	}
	if err := scanner.Err(); err != nil {
		return "", false, fmt.Errorf("reading hook file: %w", err)
	}
	return "", false, nil
}

// installHooks writes or updates the kwsub section of every managed hook.
func installHooks(hooksDir string) error {
	if err := os.MkdirAll(hooksDir, 0o755); err != nil {
		return fmt.Errorf("failed to create hooks directory: %w", err)
	}

	for _, name := range managedHooks {
		hookPath := filepath.Join(hooksDir, name)
		section := generateHookSection(name)

		// #nosec G304 -- hook path constrained to hooks directory
		existing, err := os.ReadFile(hookPath)
		var content string
		switch {
		case os.IsNotExist(err):
			content = "#!/usr/bin/env sh\n" + section
		case err != nil:
			return fmt.Errorf("failed to read %s: %w", name, err)
		default:
			content = injectHookSection(string(existing), section)
		}

		// Git hooks with CRLF fail: /usr/bin/env: 'sh\r': No such file or directory
		content = strings.ReplaceAll(content, "\r\n", "\n")

		// #nosec G306 -- git hooks must be executable for git to run them
		if err := os.WriteFile(hookPath, []byte(content), 0o755); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
		// WriteFile keeps the mode of an existing file.
		if err := os.Chmod(hookPath, 0o755); err != nil {
			return fmt.Errorf("failed to make %s executable: %w", name, err)
		}
	}
	return nil
}

// uninstallHooks removes the kwsub section from every managed hook, deleting
// files that are left with nothing but a shebang.
func uninstallHooks(hooksDir string) error {
	for _, name := range managedHooks {
		hookPath := filepath.Join(hooksDir, name)

		// #nosec G304 -- hook path constrained to hooks directory
		content, err := os.ReadFile(hookPath)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("failed to read %s: %w", name, err)
		}

		remaining, found := removeHookSection(string(content))
		if !found {
			continue
		}
		trimmed := strings.TrimSpace(remaining)
		if trimmed == "" || trimmed == "#!/usr/bin/env sh" || trimmed == "#!/bin/sh" {
			if err := os.Remove(hookPath); err != nil {
				return fmt.Errorf("failed to remove %s: %w", name, err)
			}
			continue
		}
		// #nosec G306 -- git hooks must be executable
		if err := os.WriteFile(hookPath, []byte(remaining), 0o755); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	return nil
}

// runHook executes the logic behind an installed hook section.
func runHook(ctx context.Context, name string) error {
	switch name {
	case "pre-commit":
		// A plain git hook gets no file list; the index is the source.
		files, err := repo.StagedFiles(ctx)
		if err != nil {
			return err
		}
		res, err := runPreCommit(ctx, os.Stdout, files)
		if err != nil {
			return err
		}
		if len(res.Rewritten) > 0 {
			return errHeadersUpdated
		}
		return nil
	case "post-commit", "post-merge":
		return runPostCommit(ctx)
	default:
		return fmt.Errorf("unknown hook: %s", name)
	}
}

var hooksCmd = &cobra.Command{
	Use:     "hooks",
	GroupID: "setup",
	Short:   "Manage the kwsub git hooks",
	Long: `Install, uninstall or list the git hooks that run kwsub.

  - pre-commit:  rewrite header blocks of staged files
  - post-commit: record the commit in the ledger
  - post-merge:  record merge commits in the ledger`,
}

var hooksInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install kwsub git hooks",
	Long: `Install the kwsub section into the repository's hooks (core.hooksPath when
set, otherwise the common git directory). Existing hook content outside the
section is kept.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		hooksDir, err := repo.HooksDir(cmd.Context())
		if err != nil {
			return err
		}
		if err := installHooks(hooksDir); err != nil {
			return fmt.Errorf("installing hooks: %w", err)
		}

		fmt.Println(ui.RenderPass("✓ Git hooks installed successfully"))
		fmt.Printf("\nHooks directory: %s\n", ui.RenderAccent(hooksDir))
		for _, name := range managedHooks {
			fmt.Printf("  - %s\n", name)
		}
		return nil
	},
}

var hooksUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove kwsub git hooks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		hooksDir, err := repo.HooksDir(cmd.Context())
		if err != nil {
			return err
		}
		if err := uninstallHooks(hooksDir); err != nil {
			return fmt.Errorf("uninstalling hooks: %w", err)
		}
		fmt.Println(ui.RenderPass("✓ Git hooks uninstalled successfully"))
		return nil
	},
}

var hooksListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show installed git hooks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		hooksDir, err := repo.HooksDir(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Println("Git hooks status:")
		for _, s := range checkHooks(hooksDir) {
			switch {
			case !s.Installed:
				fmt.Printf("  %s %s: not installed\n", ui.RenderFail("✗"), s.Name)
			case s.Outdated:
				fmt.Printf("  %s %s: installed (version %s, current: %s) - outdated\n",
					ui.RenderWarn("⚠"), s.Name, s.Version, Version)
			default:
				fmt.Printf("  %s %s: installed (version %s)\n", ui.RenderPass("✓"), s.Name, s.Version)
			}
		}
		return nil
	},
}

var hooksRunCmd = &cobra.Command{
	Use:   "run <hook-name> [args...]",
	Short: "Execute a git hook (called by the installed hook scripts)",
	Long: `Execute the logic for a git hook. Supported hooks:

  - pre-commit:  rewrite headers of staged files; fails the commit when any
                 file changed so the new headers can be staged
  - post-commit: record the commit in the ledger
  - post-merge:  same as post-commit`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHook(cmd.Context(), args[0])
	},
}

func init() {
	hooksCmd.AddCommand(hooksInstallCmd)
	hooksCmd.AddCommand(hooksUninstallCmd)
	hooksCmd.AddCommand(hooksListCmd)
	hooksCmd.AddCommand(hooksRunCmd)

	rootCmd.AddCommand(hooksCmd)
}
