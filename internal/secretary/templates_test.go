package secretary

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComposeSubstitutesBrandLink(t *testing.T) {
	t.Parallel()

	tpl := Templates{
		Header:    "[{brand_link}] ",
		BrandLink: "https://example.org",
		Online:    "on. ",
		Offline:   "off. ",
		Action:    "Write below.",
	}

	assert.Equal(t, "[https://example.org] on. Write below.", tpl.Compose(true))
	assert.Equal(t, "[https://example.org] off. Write below.", tpl.Compose(false))
}

func TestTemplatesValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, testTemplates.Validate())

	err := Templates{Online: " "}.Validate()
	assert.ErrorContains(t, err, "online reply text is empty")
	assert.ErrorContains(t, err, "offline reply text is empty")
}

func TestShouldConsider(t *testing.T) {
	t.Parallel()

	assert.True(t, ShouldConsider(false, ChatIndividual))
	assert.False(t, ShouldConsider(true, ChatIndividual))
	for _, kind := range []ChatKind{ChatGroup, ChatChannel, ChatAutomated} {
		assert.False(t, ShouldConsider(false, kind), kind.String())
	}
}
