package extract

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMaxPageLabel(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t, `<html><body>
		<ul class="pagination">
			<li><a href="?page=1">1</a></li>
			<li><a href="?page=2">2</a></li>
			<li><a href="?page=17">17</a></li>
			<li><a href="?page=2">Next</a></li>
		</ul>
	</body></html>`)

	label, ok := MaxPageLabel(doc)
	require.True(t, ok)
	require.Equal(t, 17, label)
}

func TestMaxPageLabelAlternateMarkup(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t, `<html><body>
		<nav class="page-numbers"><a href="/p/1"> 1 </a><a href="/p/4"> 4 </a></nav>
	</body></html>`)

	label, ok := MaxPageLabel(doc)
	require.True(t, ok)
	require.Equal(t, 4, label)
}

func TestMaxPageLabelAbsent(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t, `<html><body><p>no pagination here</p></body></html>`)
	label, ok := MaxPageLabel(doc)
	require.False(t, ok)
	require.Zero(t, label)

	label, ok = MaxPageLabel(nil)
	require.False(t, ok)
	require.Zero(t, label)
}
