package clipboard

import (
	"errors"
	"testing"
)

func TestServiceCopy(t *testing.T) {
	t.Parallel()

	failure := errors.New("no clipboard utility")
	testCases := []struct {
		name          string
		text          string
		writeErr      error
		expectedCalls int
		expectError   bool
	}{
		{name: "writes text", text: "tree", expectedCalls: 1},
		{name: "skips empty text", text: "", expectedCalls: 0},
		{name: "wraps write failures", text: "tree", writeErr: failure, expectedCalls: 1, expectError: true},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			var written []string
			service := &Service{write: func(text string) error {
				written = append(written, text)
				return testCase.writeErr
			}}
			err := service.Copy(testCase.text)
			if testCase.expectError != (err != nil) {
				t.Fatalf("unexpected error state: %v", err)
			}
			if testCase.expectError && !errors.Is(err, failure) {
				t.Fatalf("expected wrapped failure, got %v", err)
			}
			if len(written) != testCase.expectedCalls {
				t.Fatalf("expected %d writes, got %d", testCase.expectedCalls, len(written))
			}
		})
	}
}
