package stoplist

import "testing"

func TestSetBasics(t *testing.T) {
	s := New([]string{"The", " and ", ""})

	if !s.IsStop("the") || !s.IsStop("and") {
		t.Error("terms should be lowercased and trimmed")
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}

	s.Add(" OF ")
	s.Add("  ")
	if !s.IsStop("of") {
		t.Error("added term should be a stop word")
	}
	s.Remove("The")
	if s.IsStop("the") {
		t.Error("removed term should not be a stop word")
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d after edits, want 2", s.Len())
	}
}

func TestDefault(t *testing.T) {
	s := Default()
	for _, w := range []string{"yang", "dan", "untuk"} {
		if !s.IsStop(w) {
			t.Errorf("default set missing %q", w)
		}
	}
	if s.IsStop("sepatu") {
		t.Error("content word should not be a stop word")
	}
}
