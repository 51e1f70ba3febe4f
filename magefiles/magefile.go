//go:build mage

// Package main contains Mage build targets for morning-paper developer tooling.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binDir  = "bin"
	binName = "morning-paper"
	cmdPkg  = "./cmd/morning-paper"

	sampleConfig = "kindleMorningPaper.cfg"
	downloadDir  = "downloads"
)

const sampleConfigBody = `[calibre]
tempDownloadDir = downloads
path = /opt/calibre
recipe = morning.recipe
keepMobiFile = False

[mailserver]
host = smtp.example.com
username = paper@example.com
password =
port = 587

[kindle]
mail = you@kindle.com
`

// Init creates the download directory and a sample configuration file. An
// existing configuration is never overwritten.
func Init() error {
	if err := os.MkdirAll(downloadDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", downloadDir, err)
	}
	fmt.Println("  ", downloadDir)

	if _, err := os.Stat(sampleConfig); err == nil {
		fmt.Printf("   %s (exists, left unchanged)\n", sampleConfig)
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := os.WriteFile(sampleConfig, []byte(sampleConfigBody), 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", sampleConfig, err)
	}
	fmt.Println("  ", sampleConfig)
	fmt.Println("Set the mail password in .secrets/mailserver-password or MORNING_PAPER_MAILSERVER_PASSWORD.")
	return nil
}

// Build compiles the CLI binary into bin/, stamping the version from git
// when available.
func Build() error {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", binDir, err)
	}
	ver, err := sh.Output("git", "describe", "--tags", "--always", "--dirty")
	if err != nil || ver == "" {
		ver = "dev"
	}
	out := filepath.Join(binDir, binName)
	ldflags := "-X main.version=" + strings.TrimSpace(ver)
	if err := sh.RunV("go", "build", "-ldflags", ldflags, "-o", out, cmdPkg); err != nil {
		return fmt.Errorf("go build: %w", err)
	}
	fmt.Printf("Built %s\n", out)
	return nil
}

// Test runs the unit tests with the race detector.
func Test() error {
	return sh.RunV("go", "test", "-race", "./...")
}

// Check runs vet and the tests, then builds the binary.
func Check() {
	mg.SerialDeps(Vet, Test, Build)
}

// Vet runs go vet over the module.
func Vet() error {
	return sh.RunV("go", "vet", "./...")
}

// Stats prints Go production and test line counts.
func Stats() error {
	prodLines, err := countGoLines(".", false)
	if err != nil {
		return err
	}
	testLines, err := countGoLines(".", true)
	if err != nil {
		return err
	}

	fmt.Printf("Lines of code (Go, production): %d\n", prodLines)
	fmt.Printf("Lines of code (Go, tests):      %d\n", testLines)
	return nil
}

// countGoLines walks the directory tree and counts non-blank lines in Go
// files. If testOnly is true, count only _test.go files; otherwise count
// non-test .go files. Directories starting with "_" or "." are skipped.
func countGoLines(root string, testOnly bool) (int, error) {
	total := 0
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			name := info.Name()
			if path != root && (strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".go" {
			return nil
		}
		if strings.HasSuffix(path, "_test.go") != testOnly {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		for _, line := range strings.Split(string(data), "\n") {
			if strings.TrimSpace(line) != "" {
				total++
			}
		}
		return nil
	})
	return total, err
}
