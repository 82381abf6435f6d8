package configstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateResolveList(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "webhooks.conf"))
	ctx := context.Background()

	created, err := s.Create(ctx, Record{
		Service:  "github",
		Fields:   "action,pull_request{title}",
		Template: `PR $action$: $pull_request.title$`,
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.Token)

	got, err := s.Resolve(ctx, "github", created.Token)
	require.NoError(t, err)
	require.Equal(t, created.Fields, got.Fields)
	require.Equal(t, created.Template, got.Template)

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestResolveNotFound(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "webhooks.conf"))
	_, err := s.Resolve(context.Background(), "github", "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateRejectsBadService(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "webhooks.conf"))
	_, err := s.Create(context.Background(), Record{
		Service:  "GitHub Hooks",
		Fields:   "action",
		Template: "$action$",
	})
	require.ErrorIs(t, err, ErrBadConfig)
}

func TestCreateRejectsBadFields(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "webhooks.conf"))
	_, err := s.Create(context.Background(), Record{
		Service:  "github",
		Fields:   "action{",
		Template: "$action$",
	})
	require.ErrorIs(t, err, ErrBadConfig)
}

func TestCreateRejectsBadTemplate(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "webhooks.conf"))
	_, err := s.Create(context.Background(), Record{
		Service:  "github",
		Fields:   "action",
		Template: "unterminated $action",
	})
	require.ErrorIs(t, err, ErrBadConfig)
}

func TestCreateRejectsBadAlignment(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "webhooks.conf"))
	_, err := s.Create(context.Background(), Record{
		Service:   "github",
		Fields:    "action",
		Template:  "$action$",
		Alignment: "team:42",
	})
	require.ErrorIs(t, err, ErrBadConfig)
}

func TestCreateExplicitTokenCollision(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "webhooks.conf"))
	ctx := context.Background()

	first, err := s.Create(ctx, Record{Service: "github", Fields: "action", Template: "$action$"})
	require.NoError(t, err)

	_, err = s.Create(ctx, Record{Service: "gitlab", Token: first.Token, Fields: "action", Template: "$action$"})
	require.ErrorIs(t, err, ErrTokenCollision)
}

func TestUpdatePreservesServiceAndToken(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "webhooks.conf"))
	ctx := context.Background()

	created, err := s.Create(ctx, Record{Service: "github", Fields: "action", Template: "$action$"})
	require.NoError(t, err)

	updated, err := s.Update(ctx, "github", created.Token, "action,pull_request{title}", "PR: $pull_request.title$", "org:7")
	require.NoError(t, err)
	require.Equal(t, created.Service, updated.Service)
	require.Equal(t, created.Token, updated.Token)
	require.Equal(t, "org:7", updated.Alignment)

	got, err := s.Resolve(ctx, "github", created.Token)
	require.NoError(t, err)
	require.Equal(t, "PR: $pull_request.title$", got.Template)
}

func TestUpdateNotFound(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "webhooks.conf"))
	_, err := s.Update(context.Background(), "github", "nope", "action", "$action$", "")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteRemovesRecord(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "webhooks.conf"))
	ctx := context.Background()

	created, err := s.Create(ctx, Record{Service: "github", Fields: "action", Template: "$action$"})
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "github", created.Token))

	_, err = s.Resolve(ctx, "github", created.Token)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteNotFound(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "webhooks.conf"))
	err := s.Delete(context.Background(), "github", "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLegacyLinesLoadAndResolve(t *testing.T) {
	path := filepath.Join(t.TempDir(), "webhooks.conf")
	body := strings.Join([]string{
		"[webhooks]",
		"github_abcdefghijklmnopqrstuvwxyz012345 = action::$action$",
		"legacyonly = action::$action$",
	}, "\n") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	s := New(path)
	ctx := context.Background()

	withToken, err := s.Resolve(ctx, "github", "abcdefghijklmnopqrstuvwxyz012345")
	require.NoError(t, err)
	require.Equal(t, "action", withToken.Fields)

	tokenless, err := s.Resolve(ctx, "legacyonly", legacyToken)
	require.NoError(t, err)
	require.Equal(t, "action", tokenless.Fields)
}

func TestDuplicateLegacyLinesRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "webhooks.conf")
	body := strings.Join([]string{
		"[webhooks]",
		"legacyonly = action::$action$",
		"legacyonly = action,repository::$action$",
	}, "\n") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	s := New(path)
	_, err := s.List(context.Background())
	require.ErrorIs(t, err, ErrBadConfig)
}

func TestSaveMigratesLegacyTokenFormatButNotTokenless(t *testing.T) {
	path := filepath.Join(t.TempDir(), "webhooks.conf")
	body := strings.Join([]string{
		"[webhooks]",
		"github_abcdefghijklmnopqrstuvwxyz012345 = action::$action$",
		"legacyonly = action::$action$",
	}, "\n") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	s := New(path)
	ctx := context.Background()

	// Any write (here, creating an unrelated record) triggers a full
	// rewrite of the file.
	_, err := s.Create(ctx, Record{Service: "gitlab", Fields: "action", Template: "$action$"})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)

	require.Contains(t, content, "github_abcdefghijklmnopqrstuvwxyz012345||action|$action$")
	require.Contains(t, content, "legacyonly = action::$action$")
}

func TestSaveWritesBackupOfPriorContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "webhooks.conf")
	require.NoError(t, os.WriteFile(path, []byte("[webhooks]\n"), 0o644))

	s := New(path)
	_, err := s.Create(context.Background(), Record{Service: "github", Fields: "action", Template: "$action$"})
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	var sawBackup bool
	for _, e := range entries {
		if strings.Contains(e.Name(), ".bak") {
			sawBackup = true
		}
	}
	require.True(t, sawBackup, "expected a backup file in %s", dir)
}

func TestListSortedByServiceThenToken(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "webhooks.conf"))
	ctx := context.Background()

	_, err := s.Create(ctx, Record{Service: "gitlab", Fields: "action", Template: "$action$"})
	require.NoError(t, err)
	_, err = s.Create(ctx, Record{Service: "github", Fields: "action", Template: "$action$"})
	require.NoError(t, err)

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "github", all[0].Service)
	require.Equal(t, "gitlab", all[1].Service)
}
