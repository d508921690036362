package archive

import (
	"archive/zip"
	"context"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/fgeck/ha-backupper/internal/models"
	"github.com/juju/errors"
)

type plannedMember struct {
	file *zip.File
	dest string
}

// Restore extracts archive members into the configuration directory.
//
// All selected members are checked before anything is written; a single
// member resolving outside the configuration directory aborts the restore
// with ErrPathTraversal. Other per-member problems are reported in the
// result: existing files are skipped unless overwrite is set, write errors
// mark the member failed and requested targets missing from the archive
// are reported as not found.
func (s *Impl) Restore(ctx context.Context, cfg models.Config, params models.RestoreParams) (*models.RestoreResult, error) {
	name, archiveFile, err := archivePath(cfg, params.Name)
	if err != nil {
		return nil, err
	}
	if ok, err := exists(archiveFile); err != nil {
		return nil, err
	} else if !ok {
		return nil, errors.NotFoundf("backup %q", name)
	}

	base, err := ConfigDir(cfg)
	if err != nil {
		return nil, err
	}

	zr, err := zip.OpenReader(archiveFile)
	if errors.Is(err, zip.ErrInsecurePath) {
		_ = zr.Close()
		return nil, errors.Annotatef(ErrPathTraversal, "archive %s", name)
	}
	if err != nil {
		return nil, errors.Annotatef(err, "opening archive %s", name)
	}
	defer func() { _ = zr.Close() }()

	targets := normalizeTargets(params.Targets)
	wanted := make(map[string]bool, len(targets))
	for _, t := range targets {
		wanted[t] = true
	}

	s.logger.Info().
		Str("archive", name).
		Str("config_dir", base).
		Int("targets", len(targets)).
		Bool("overwrite", params.Overwrite).
		Msg("restoring backup")

	matched := make(map[string]bool)
	var plan []plannedMember
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if len(wanted) > 0 && !wanted[f.Name] {
			continue
		}
		dest, err := destinationPath(base, f.Name)
		if err != nil {
			s.logger.Error().Err(err).Str("archive", name).Str("member", f.Name).Msg("refusing to restore archive")
			return nil, err
		}
		matched[f.Name] = true
		plan = append(plan, plannedMember{file: f, dest: dest})
	}

	result := &models.RestoreResult{Archive: name}
	for _, m := range plan {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Add(s.restoreMember(m, params.Overwrite))
	}
	for _, t := range targets {
		if !matched[t] {
			s.logger.Warn().Str("target", t).Msg("restore target not found in archive")
			result.Add(models.MemberOutcome{Path: t, Status: models.RestoreStatusNotFound})
		}
	}

	s.logger.Info().
		Str("archive", name).
		Int("restored", result.Restored).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Int("not_found", result.NotFound).
		Msg("restore completed")

	return result, nil
}

func (s *Impl) restoreMember(m plannedMember, overwrite bool) models.MemberOutcome {
	outcome := models.MemberOutcome{Path: m.file.Name}

	taken, err := exists(m.dest)
	if err != nil {
		return failed(outcome, err)
	}
	if taken && !overwrite {
		s.logger.Debug().Str("member", m.file.Name).Msg("destination exists, skipping")
		outcome.Status = models.RestoreStatusSkipped
		return outcome
	}

	if err := os.MkdirAll(filepath.Dir(m.dest), 0o750); err != nil {
		return failed(outcome, errors.Annotate(err, "creating directory"))
	}

	rc, err := m.file.Open()
	if err != nil {
		return failed(outcome, errors.Annotate(err, "reading member"))
	}
	defer func() { _ = rc.Close() }()

	perm := m.file.Mode().Perm()
	if perm == 0 {
		perm = 0o644
	}
	if _, err := writeAtomic(m.dest, rc, perm, m.file.Modified); err != nil {
		return failed(outcome, err)
	}

	s.logger.Debug().Str("member", m.file.Name).Str("dest", m.dest).Msg("member restored")
	outcome.Status = models.RestoreStatusRestored
	return outcome
}

func failed(outcome models.MemberOutcome, err error) models.MemberOutcome {
	outcome.Status = models.RestoreStatusFailed
	outcome.Error = err.Error()
	return outcome
}

// destinationPath maps a member name to its location below base. Names
// that are absolute or climb out lexically are rejected. Symlinks inside
// base are followed as long as they resolve to somewhere below base.
func destinationPath(base, member string) (string, error) {
	rel := filepath.FromSlash(member)
	if !filepath.IsLocal(rel) {
		return "", errors.Annotatef(ErrPathTraversal, "member %q", member)
	}
	dest, err := securejoin.SecureJoin(base, rel)
	if err != nil {
		return "", errors.Annotatef(err, "resolving member %q", member)
	}
	if dest == filepath.Join(base, rel) {
		return dest, nil
	}

	// SecureJoin clamps links that leave base back into it, so the real
	// target has to agree with the clamped one.
	realBase, err := evalExisting(base)
	if err != nil {
		return "", errors.Annotatef(err, "resolving %s", base)
	}
	realDest, err := evalExisting(filepath.Join(base, rel))
	if err != nil {
		return "", errors.Annotatef(err, "resolving member %q", member)
	}
	realRel, err := filepath.Rel(realBase, realDest)
	if err != nil || !filepath.IsLocal(realRel) {
		return "", errors.Annotatef(ErrPathTraversal, "member %q resolves to %s through a symlink", member, realDest)
	}
	destRel, err := filepath.Rel(base, dest)
	if err != nil || destRel != realRel {
		return "", errors.Annotatef(ErrPathTraversal, "member %q resolves to %s through a symlink", member, realDest)
	}
	return dest, nil
}

// evalExisting resolves symlinks in the longest existing prefix of p and
// appends the remaining elements unchanged.
func evalExisting(p string) (string, error) {
	var rest []string
	for {
		resolved, err := filepath.EvalSymlinks(p)
		if err == nil {
			slices.Reverse(rest)
			return filepath.Join(append([]string{resolved}, rest...)...), nil
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", err
		}
		rest = append(rest, filepath.Base(p))
		p = parent
	}
}

// normalizeTargets cleans requested member paths and drops duplicates,
// keeping the caller's order.
func normalizeTargets(targets []string) []string {
	seen := make(map[string]bool, len(targets))
	out := make([]string, 0, len(targets))
	for _, t := range targets {
		t = strings.TrimPrefix(path.Clean(filepath.ToSlash(strings.TrimSpace(t))), "./")
		if t == "" || t == "." || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
