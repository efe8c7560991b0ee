package git

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseNameStatus(t *testing.T) {
	t.Parallel()

	out := "M\tapp/Foo.kt\nA\tapp/New.kt\nD\tapp/Old.kt\nR087\tapp/A.kt\tapp/B.kt\nC100\tx.kt\ty.kt\nT\tlink\n\n"
	assert.Equal(t, []FileChange{
		{Status: StatusModified, Path: "app/Foo.kt"},
		{Status: StatusAdded, Path: "app/New.kt"},
		{Status: StatusDeleted, Path: "app/Old.kt"},
		{Status: StatusRenamed, Path: "app/B.kt", OldPath: "app/A.kt"},
		{Status: StatusAdded, Path: "y.kt", OldPath: "x.kt"},
		{Status: StatusModified, Path: "link"},
	}, ParseNameStatus(out))

	assert.Empty(t, ParseNameStatus(""))
}
