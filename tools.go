//go:build tools

package treeforge

import (
	_ "github.com/maxbrunsfeld/counterfeiter/v6"
)
