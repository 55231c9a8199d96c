// SPDX-License-Identifier: Apache-2.0

package version_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/omegaparse/omegaparse/internal/version"
)

func TestGetInfo(t *testing.T) {
	info := version.GetInfo()
	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.GitCommit)
	assert.NotEmpty(t, info.BuildDate)
}

func TestShortCommit(t *testing.T) {
	saved := version.GitCommit
	t.Cleanup(func() { version.GitCommit = saved })

	version.GitCommit = "abcdef123456"
	assert.Equal(t, "abcdef1", version.ShortCommit())

	version.GitCommit = "abc"
	assert.Equal(t, "abc", version.ShortCommit())
}
