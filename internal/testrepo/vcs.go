package testrepo

import (
	"github.com/Masterminds/vcs"
	"github.com/pkg/errors"

	"github.com/solvd/pkgcore/internal/name"
	"github.com/solvd/pkgcore/internal/repo"
)

// VCS is a repository whose Sync actually clones or updates a git checkout
// (via github.com/Masterminds/vcs), the way paludis's repository_repository
// wraps an external sync mechanism rather than implementing one itself; its
// PackageIDs are whatever has been Add-ed to the embedded Memory, standing
// in for "metadata parsed from the checkout" without this module needing to
// implement any particular on-disk repository format.
type VCS struct {
	*Memory
	git *vcs.GitRepo
}

// NewVCS constructs a VCS repository backed by a git checkout of remote
// into local.
func NewVCS(rn name.RepositoryName, remote, local string) (*VCS, error) {
	g, err := vcs.NewGitRepo(remote, local)
	if err != nil {
		return nil, errors.Wrapf(err, "testrepo: preparing git repo for %q at %q", remote, local)
	}
	m := NewMemory(rn)
	m.SupportsSync = true
	return &VCS{Memory: m, git: g}, nil
}

// Sync clones the remote if no local checkout exists yet, otherwise pulls
// the latest changes, mirroring the get()-then-fetch() split golang-dep's
// own ctxRepo wrapper makes around the same library.
func (v *VCS) Sync(out repo.SyncOutput) error {
	if !v.git.CheckLocal() {
		if out != nil {
			out.Write("cloning " + v.git.Remote())
		}
		if err := v.git.Get(); err != nil {
			return errors.Wrapf(err, "testrepo: cloning %q", v.git.Remote())
		}
		return nil
	}
	if out != nil {
		out.Write("updating " + v.git.LocalPath())
	}
	if err := v.git.Update(); err != nil {
		return errors.Wrapf(err, "testrepo: updating %q", v.git.LocalPath())
	}
	return nil
}
