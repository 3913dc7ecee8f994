package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestTruncate(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		limit int
		want  string
	}{
		{"short", "hello", 10, "hello"},
		{"exact", "hello", 5, "hello"},
		{"cut", "hello world", 5, "hello"},
		{"multibyte", "héllo wörld", 7, "héllo w"},
		{"no limit", "hello", 0, "hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Truncate(tt.in, tt.limit))
		})
	}
}

func TestSanitizeText(t *testing.T) {
	assert.Equal(t, "plain", SanitizeText("plain"))
	assert.Equal(t, "Caf\uFFFD", SanitizeText("Caf\xe9"))
	assert.Equal(t, "ab", SanitizeText("a\x00b"))
	assert.Equal(t, "héllo", SanitizeText("héllo"))
}

func TestReplyHistory_AppendDedupes(t *testing.T) {
	first := ReplyEntry{MessageID: "gm-1", Body: "one"}
	second := ReplyEntry{MessageID: "gm-2", Body: "two"}

	h, added := ReplyHistory(nil).Append(first)
	require.True(t, added)
	h, added = h.Append(second)
	require.True(t, added)

	again, added := h.Append(first)
	assert.False(t, added)
	assert.Len(t, again, 2)

	latest, ok := h.Latest()
	require.True(t, ok)
	assert.Equal(t, "two", latest.Body)
}

func TestReplyHistory_AppendDoesNotAlias(t *testing.T) {
	base := make(ReplyHistory, 1, 4)
	base[0] = ReplyEntry{MessageID: "a"}

	x, _ := base.Append(ReplyEntry{MessageID: "b"})
	y, _ := base.Append(ReplyEntry{MessageID: "c"})

	assert.Equal(t, "b", x[1].MessageID)
	assert.Equal(t, "c", y[1].MessageID)
}

func TestReplyHistory_EmptyMessageIDAlwaysAppends(t *testing.T) {
	h, _ := ReplyHistory(nil).Append(ReplyEntry{Body: "legacy"})
	h, added := h.Append(ReplyEntry{Body: "legacy"})
	assert.True(t, added)
	assert.Len(t, h, 2)
}

func TestSubmission_LenderLabel(t *testing.T) {
	assert.Equal(t, "Acme Capital", (&Submission{LenderName: " Acme Capital "}).LenderLabel())
	assert.Equal(t, "Fundbox", (&Submission{LenderNames: "Fundbox"}).LenderLabel())
	assert.Equal(t, "Acme", (&Submission{LenderName: "Acme", LenderNames: "Other"}).LenderLabel())
	assert.Equal(t, UnknownLender, (&Submission{}).LenderLabel())
}

func TestSubmission_HasReply(t *testing.T) {
	assert.False(t, (&Submission{}).HasReply())
	assert.True(t, (&Submission{ReplyBody: strPtr("")}).HasReply())
}

func TestNormalizeLabel(t *testing.T) {
	tests := []struct {
		in     string
		want   Label
		wantOK bool
	}{
		{"APPROVAL", LabelApproval, true},
		{" decline ", LabelDecline, true},
		{"Neutral", LabelNeutral, true},
		{"MAYBE", LabelNeutral, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := NormalizeLabel(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestClassificationResult_Validate(t *testing.T) {
	tests := []struct {
		name    string
		result  ClassificationResult
		wantErr error
	}{
		{"approval ok", ClassificationResult{Classification: LabelApproval, Offer: strPtr("$50k at 1.3")}, nil},
		{"approval missing offer", ClassificationResult{Classification: LabelApproval}, ErrMissingOffer},
		{"approval blank offer", ClassificationResult{Classification: LabelApproval, Offer: strPtr("  ")}, ErrMissingOffer},
		{"decline ok", ClassificationResult{Classification: LabelDecline, DeclineReason: strPtr("Low revenue")}, nil},
		{"decline missing reason", ClassificationResult{Classification: LabelDecline}, ErrMissingDeclineReason},
		{"neutral", ClassificationResult{Classification: LabelNeutral}, nil},
		{"empty", ClassificationResult{}, ErrMissingClassification},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.result.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNewDeclineLogRow_FieldExclusivity(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	sub := &Submission{ID: 7, BusinessName: "Joe's Diner", LenderNames: "Acme"}

	approval, err := NewDeclineLogRow(sub, &ClassificationResult{
		Classification: LabelApproval,
		Offer:          strPtr(" $25k "),
		DeclineReason:  strPtr("ignored"),
	}, now)
	require.NoError(t, err)
	require.NotNil(t, approval.Offer)
	assert.Equal(t, "$25k", *approval.Offer)
	assert.Nil(t, approval.DeclineReason)
	assert.Equal(t, "Acme", approval.LenderNames)
	assert.Equal(t, int64(7), approval.SubmissionID)

	decline, err := NewDeclineLogRow(sub, &ClassificationResult{
		Classification: LabelDecline,
		DeclineReason:  strPtr("Low revenue"),
		Offer:          strPtr("ignored"),
	}, now)
	require.NoError(t, err)
	assert.Nil(t, decline.Offer)
	assert.Equal(t, "Low revenue", *decline.DeclineReason)

	_, err = NewDeclineLogRow(sub, &ClassificationResult{Classification: LabelNeutral}, now)
	assert.Error(t, err)
}

func TestLenderDirectory(t *testing.T) {
	d := NewLenderDirectory(map[string][]string{
		"Acme Capital": {"Deals@Acme.com", " uw@acme.com "},
	})
	d.Add("acme capital", "extra@acme.com", "")
	d.Add("", "nobody@x.com")

	assert.True(t, d.Accepts("ACME CAPITAL", "deals@acme.com"))
	assert.True(t, d.Accepts("Acme Capital", "UW@ACME.COM"))
	assert.False(t, d.Accepts("Acme Capital", "someone@else.com"))
	assert.False(t, d.Accepts("Other", "deals@acme.com"))
	assert.Equal(t, []string{"deals@acme.com", "extra@acme.com", "uw@acme.com"}, d.Emails("Acme Capital"))
	assert.Equal(t, 1, d.Len())

	var nilDir *LenderDirectory
	assert.False(t, nilDir.Accepts("x", "y"))
	assert.Zero(t, nilDir.Len())
}
