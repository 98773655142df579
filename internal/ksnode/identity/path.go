package identity

import (
	"fmt"
	"path/filepath"
	"strings"
)

// keyFilePath builds the on-disk path for a node's key file. The node name
// becomes part of the filename, so anything that could step outside
// identityDir is rejected before it reaches the filesystem.
func keyFilePath(identityDir, nodeName string, encrypted bool) (string, error) {
	if strings.TrimSpace(nodeName) == "" {
		return "", fmt.Errorf("node name must not be empty")
	}
	if strings.ContainsAny(nodeName, `/\`) || strings.Contains(nodeName, "..") {
		return "", fmt.Errorf("node name %q must not contain path separators or traversal", nodeName)
	}

	filename := nodeName + "_private.key"
	if encrypted {
		filename += ".age"
	}
	return filepath.Join(identityDir, filename), nil
}
