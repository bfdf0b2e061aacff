//go:build !windows

package assemble

import "github.com/google/renameio/v2"

type pendingFile struct {
	*renameio.PendingFile
}

func (f pendingFile) commit() error { return f.CloseAtomicallyReplace() }
func (f pendingFile) abort() error  { return f.Cleanup() }

func createAtomic(path string) (output, error) {
	f, err := renameio.NewPendingFile(path, renameio.WithPermissions(OutputMode))
	if err != nil {
		return nil, err
	}
	return pendingFile{f}, nil
}
