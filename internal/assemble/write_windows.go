package assemble

import "fmt"

func createAtomic(path string) (output, error) {
	return nil, fmt.Errorf("%w: atomic output is not supported on Windows", ErrConfiguration)
}
