// Package testutil starts throw-away MySQL-protocol servers for ledger tests.
//
// A local `dolt sql-server` is preferred because it starts in well under a
// second. When the dolt binary is missing, StartDoltContainer can run the
// same server in Docker through testcontainers.
package testutil

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
)

// serverStartTimeout bounds how long we wait for a fresh server to accept connections.
const serverStartTimeout = 15 * time.Second

// TestDoltServer represents a running test dolt server instance.
type TestDoltServer struct {
	Port   int
	cmd    *exec.Cmd
	tmpDir string
}

// StartTestDoltServer starts a dedicated Dolt SQL server in a temp directory
// on a dynamic port.
//
// tmpDirPrefix is the os.MkdirTemp prefix (e.g. "kwsub-ledger-test-*").
// Returns the server (nil if dolt is not installed or failed to start) and a
// cleanup function that is always safe to call.
func StartTestDoltServer(tmpDirPrefix string) (*TestDoltServer, func()) {
	if _, err := exec.LookPath("dolt"); err != nil {
		return nil, func() {}
	}

	tmpDir, err := os.MkdirTemp("", tmpDirPrefix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARN: failed to create test dolt dir: %v\n", err)
		return nil, func() {}
	}

	dbDir := filepath.Join(tmpDir, "data")
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "WARN: failed to create test dolt data dir: %v\n", err)
		_ = os.RemoveAll(tmpDir)
		return nil, func() {}
	}

	// Configure dolt user identity (required by dolt init).
	doltEnv := append(os.Environ(), "DOLT_ROOT_PATH="+tmpDir)
	for _, args := range [][]string{
		{"dolt", "config", "--global", "--add", "user.name", "kwsub-test"},
		{"dolt", "config", "--global", "--add", "user.email", "test@kwsub.local"},
	} {
		cfgCmd := exec.Command(args[0], args[1:]...)
		cfgCmd.Env = doltEnv
		if out, err := cfgCmd.CombinedOutput(); err != nil {
			fmt.Fprintf(os.Stderr, "WARN: %s failed: %v\n%s\n", args[1], err, out)
			_ = os.RemoveAll(tmpDir)
			return nil, func() {}
		}
	}

	port, err := FindFreePort()
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARN: failed to find free port: %v\n", err)
		_ = os.RemoveAll(tmpDir)
		return nil, func() {}
	}

	serverCmd := exec.Command("dolt", "sql-server",
		"-H", "127.0.0.1",
		"-P", fmt.Sprintf("%d", port),
	)
	serverCmd.Dir = dbDir
	serverCmd.Env = doltEnv
	if os.Getenv("KWSUB_TEST_DOLT_VERBOSE") == "1" {
		serverCmd.Stderr = os.Stderr
		serverCmd.Stdout = os.Stderr
	}
	if err := serverCmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "WARN: failed to start test dolt server: %v\n", err)
		_ = os.RemoveAll(tmpDir)
		return nil, func() {}
	}

	srv := &TestDoltServer{Port: port, cmd: serverCmd, tmpDir: tmpDir}
	if !WaitForServer(port, serverStartTimeout) {
		fmt.Fprintf(os.Stderr, "WARN: test dolt server did not become ready on port %d\n", port)
		srv.cleanup()
		return nil, func() {}
	}

	return srv, srv.cleanup
}

// Config returns a driver configuration for the server's root user with no
// database selected.
func (s *TestDoltServer) Config() *mysql.Config {
	cfg := mysql.NewConfig()
	cfg.User = "root"
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("127.0.0.1:%d", s.Port)
	cfg.Timeout = 2 * time.Second
	return cfg
}

// cleanup stops the server and removes its temp dir.
func (s *TestDoltServer) cleanup() {
	if s == nil {
		return
	}
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
		_ = s.cmd.Wait()
	}
	if s.tmpDir != "" {
		_ = os.RemoveAll(s.tmpDir)
	}
}

// FindFreePort finds an available TCP port by binding to :0.
func FindFreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	port := l.Addr().(*net.TCPAddr).Port
	_ = l.Close()
	return port, nil
}

// WaitForServer polls until the server accepts TCP connections on the given port.
func WaitForServer(port int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return true
		}
		time.Sleep(200 * time.Millisecond)
	}
	return false
}

var unsafeDBChars = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// CreateTestDatabase creates a uniquely named database on the server behind
// base and returns a configuration that selects it. The database is dropped
// when the test finishes.
func CreateTestDatabase(t *testing.T, base *mysql.Config) *mysql.Config {
	t.Helper()

	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		t.Fatalf("CreateTestDatabase: failed to generate random bytes: %v", err)
	}
	name := strings.ToLower(unsafeDBChars.ReplaceAllString(t.Name(), "_"))
	if len(name) > 40 {
		name = name[:40]
	}
	name = "kwsub_" + name + "_" + hex.EncodeToString(buf)

	admin := base.Clone()
	admin.DBName = ""
	db, err := openConfig(admin)
	if err != nil {
		t.Fatalf("CreateTestDatabase: connect: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	//nolint:gosec // G201: database name is sanitized test infrastructure
	if _, err := db.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE `%s`", name)); err != nil {
		t.Fatalf("CreateTestDatabase: CREATE DATABASE %s: %v", name, err)
	}

	t.Cleanup(func() {
		db, err := openConfig(admin)
		if err != nil {
			return
		}
		defer db.Close()
		//nolint:gosec // G201: database name is sanitized test infrastructure
		_, _ = db.Exec(fmt.Sprintf("DROP DATABASE IF EXISTS `%s`", name))
	})

	cfg := base.Clone()
	cfg.DBName = name
	return cfg
}

func openConfig(cfg *mysql.Config) (*sql.DB, error) {
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, err
	}
	return sql.OpenDB(connector), nil
}
