package s3

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURI(t *testing.T) {
	bucket, prefix, err := ParseURI("s3://models/cell-classifier/v3")
	require.NoError(t, err)
	assert.Equal(t, "models", bucket)
	assert.Equal(t, "cell-classifier/v3", prefix)
}

func TestParseURIBucketOnly(t *testing.T) {
	bucket, prefix, err := ParseURI("s3://models")
	require.NoError(t, err)
	assert.Equal(t, "models", bucket)
	assert.Equal(t, "", prefix)
}

func TestParseURIRejectsOtherSchemes(t *testing.T) {
	for _, uri := range []string{"http://models/x", "models/x", "s3://"} {
		_, _, err := ParseURI(uri)
		assert.Errorf(t, err, "uri %q should be rejected", uri)
	}
}
