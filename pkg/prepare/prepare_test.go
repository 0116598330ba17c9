package prepare

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-go-golems/stackup/pkg/config"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func mkdirs(t *testing.T, root string, dirs ...string) {
	t.Helper()
	for _, d := range dirs {
		require.NoError(t, os.MkdirAll(filepath.Join(root, d), 0o755))
	}
}

func touch(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestIsFirstRun(t *testing.T) {
	root := t.TempDir()
	p := New(Options{Root: root, Markers: []string{"bin", "obj", "src/api/bin"}})
	require.True(t, p.IsFirstRun())

	// a file with a marker name does not count
	touch(t, filepath.Join(root, "bin"), time.Now())
	require.True(t, p.IsFirstRun())

	mkdirs(t, root, "src/api/bin")
	require.False(t, p.IsFirstRun())
}

func TestMigrationsNeeded(t *testing.T) {
	root := t.TempDir()
	p := New(Options{Root: root, MigrationDir: "migrations", MigrationGlobs: []string{"*.cs"}})
	past := time.Now().Add(-time.Hour)
	touch(t, filepath.Join(root, "migrations", "20240101_Init.cs"), past)

	require.True(t, p.MigrationsNeeded(), "missing marker")

	require.NoError(t, p.MarkMigrationsApplied())
	require.FileExists(t, filepath.Join(root, "migrations", ".migrations_applied"))
	require.False(t, p.MigrationsNeeded())

	// files outside the globs are ignored
	touch(t, filepath.Join(root, "migrations", "notes.md"), time.Now().Add(time.Hour))
	require.False(t, p.MigrationsNeeded())

	touch(t, filepath.Join(root, "migrations", "sub", "20250101_AddUsers.cs"), time.Now().Add(time.Hour))
	require.True(t, p.MigrationsNeeded())
}

func TestMigrationsNeeded_MissingDirCountsAsNeeded(t *testing.T) {
	p := New(Options{Root: t.TempDir(), MigrationDir: "nope"})
	require.True(t, p.MigrationsNeeded())
}

func TestClean_BestEffort(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "bin", "src/api/obj", "src/web/bin/Debug", "logs", ".git/objects/bin", "node_modules/pkg/obj", ".stackup/logs", "src/api/Controllers")
	touch(t, filepath.Join(root, "build.log"), time.Now())
	touch(t, filepath.Join(root, "src/api/scratch.tmp"), time.Now())
	touch(t, filepath.Join(root, "src/api/Controllers/Users.cs"), time.Now())
	touch(t, filepath.Join(root, ".stackup/logs/web.log"), time.Now())

	var ran []string
	p := New(Options{
		Root:         root,
		CleanDirs:    []string{"bin", "obj", "logs"},
		CleanFiles:   []string{"*.log", "*.tmp"},
		SkipDirs:     []string{".git", "node_modules"},
		CleanCommand: []string{"dotnet", "clean"},
		Run: func(ctx context.Context, dir string, argv []string) ([]byte, error) {
			ran = append(ran, strings.Join(argv, " "))
			return []byte("error MSB1003\n"), errors.New("exit status 1")
		},
	})
	p.removeAll = func(path string) error {
		if strings.HasSuffix(path, filepath.Join("src", "api", "obj")) {
			return errors.New("permission denied")
		}
		return os.RemoveAll(path)
	}

	rep := p.Clean(context.Background())
	require.Equal(t, []string{"dotnet clean"}, ran)
	require.Error(t, rep.CommandErr)
	require.Len(t, rep.Failures, 1)
	require.Equal(t, filepath.Join(root, "src/api/obj"), rep.Failures[0].Path)

	require.NoDirExists(t, filepath.Join(root, "bin"))
	require.NoDirExists(t, filepath.Join(root, "src/web/bin"))
	require.NoDirExists(t, filepath.Join(root, "logs"))
	require.NoFileExists(t, filepath.Join(root, "build.log"))
	require.NoFileExists(t, filepath.Join(root, "src/api/scratch.tmp"))

	require.DirExists(t, filepath.Join(root, "src/api/obj"))
	require.FileExists(t, filepath.Join(root, "src/api/Controllers/Users.cs"))
	require.DirExists(t, filepath.Join(root, ".git/objects/bin"))
	require.DirExists(t, filepath.Join(root, "node_modules/pkg/obj"))
	require.FileExists(t, filepath.Join(root, ".stackup/logs/web.log"))
}

func TestRunSteps_StopsAtFirstFailure(t *testing.T) {
	root := t.TempDir()
	var dirs []string
	p := New(Options{Root: root, Run: func(ctx context.Context, dir string, argv []string) ([]byte, error) {
		dirs = append(dirs, dir)
		if argv[1] == "build" {
			return []byte("Build FAILED.\nerror CS1002: ; expected\n"), errors.New("exit status 1")
		}
		return []byte("Restored.\n"), nil
	}})

	results := p.RunSteps(context.Background(), []config.Step{
		{Name: "restore", Command: []string{"dotnet", "restore"}},
		{Name: "build", Command: []string{"dotnet", "build"}, Cwd: "src"},
		{Name: "publish", Command: []string{"dotnet", "publish"}},
	})
	require.Len(t, results, 2)
	require.NoError(t, results[0].Err)
	require.Equal(t, []string{root, filepath.Join(root, "src")}, dirs)

	failed := FirstFailure(results)
	require.NotNil(t, failed)
	require.Equal(t, "build", failed.Name)
	require.Equal(t, "error CS1002: ; expected", failed.Output[len(failed.Output)-1])
	require.Nil(t, FirstFailure(results[:1]))
}

func TestApplyMigrations(t *testing.T) {
	root := t.TempDir()
	p := New(Options{Root: root, MigrationDir: "migrations"})

	fail := CommandMigrator{Command: []string{"dotnet", "ef", "database", "update"}, Run: func(ctx context.Context, dir string, argv []string) ([]byte, error) {
		return []byte("Build started...\nNpgsql: connection refused\n"), errors.New("exit status 1")
	}}
	err := p.ApplyMigrations(context.Background(), fail)
	require.Error(t, err)
	require.Contains(t, err.Error(), "connection refused")
	require.NoFileExists(t, p.MarkerPath())

	ok := CommandMigrator{Command: []string{"true"}}
	require.NoError(t, p.ApplyMigrations(context.Background(), ok))
	require.FileExists(t, p.MarkerPath())
}

func TestSQLMigrator_Errors(t *testing.T) {
	require.Error(t, SQLMigrator{Dir: t.TempDir()}.Migrate(context.Background()))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = SQLMigrator{Dir: t.TempDir(), DatabaseURL: "postgres://postgres@" + addr + "/app?sslmode=disable&connect_timeout=1"}.Migrate(ctx)
	require.Error(t, err)
	require.Contains(t, err.Error(), "ping database")
}
