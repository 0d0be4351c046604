package filter

import (
	"bytes"
	"testing"
)

func TestParseEquality(t *testing.T) {
	n, err := Parse("(cn=alice)")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if n.Op != OpEquality || n.Attr != "cn" || string(n.Value) != "alice" {
		t.Fatalf("got %+v", n)
	}
}

func TestParsePresence(t *testing.T) {
	n, err := Parse("(cn=*)")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if n.Op != OpPresence || n.Attr != "cn" {
		t.Fatalf("got %+v", n)
	}
}

func TestParseApproximate(t *testing.T) {
	n, err := Parse("(cn~=alise)")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if n.Op != OpApproximate || string(n.Value) != "alise" {
		t.Fatalf("got %+v", n)
	}
}

func TestParseSubstringAllComponents(t *testing.T) {
	n, err := Parse("(cn=al*ic*e)")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if n.Op != OpSubstring {
		t.Fatalf("expected OpSubstring, got %+v", n)
	}
	if string(n.Initial) != "al" {
		t.Fatalf("got Initial=%q", n.Initial)
	}
	if len(n.Any) != 1 || string(n.Any[0]) != "ic" {
		t.Fatalf("got Any=%v", n.Any)
	}
	if string(n.Final) != "e" {
		t.Fatalf("got Final=%q", n.Final)
	}
}

func TestParseSubstringLeadingWildcardHasNoInitial(t *testing.T) {
	n, err := Parse("(cn=*lice)")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if n.Initial != nil {
		t.Fatalf("expected nil Initial for a leading wildcard, got %q", n.Initial)
	}
	if string(n.Final) != "lice" {
		t.Fatalf("got Final=%q", n.Final)
	}
}

func TestParseAndOr(t *testing.T) {
	n, err := Parse("(&(cn=a)(|(sn=b)(sn=c)))")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if n.Op != OpAnd || len(n.Children) != 2 {
		t.Fatalf("got %+v", n)
	}
	or := n.Children[1]
	if or.Op != OpOr || len(or.Children) != 2 {
		t.Fatalf("got %+v", or)
	}
}

func TestParseNot(t *testing.T) {
	n, err := Parse("(!(cn=a))")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if n.Op != OpNot || len(n.Children) != 1 || n.Children[0].Attr != "cn" {
		t.Fatalf("got %+v", n)
	}
}

func TestParseRejectsTrailingInput(t *testing.T) {
	if _, err := Parse("(cn=a)(sn=b)"); err == nil {
		t.Fatal("expected a trailing-input error")
	}
}

func TestParseRejectsMalformedFilter(t *testing.T) {
	if _, err := Parse("(cn)"); err == nil {
		t.Fatal("expected a malformed-filter error")
	}
}

func TestUnescapeValueResolvesHexEscapes(t *testing.T) {
	got := unescapeValue([]byte(`a\2ab`))
	if !bytes.Equal(got, []byte("a*b")) {
		t.Fatalf("got %q, want %q", got, "a*b")
	}
}

func TestUnescapeValueWithoutEscapesIsUnchanged(t *testing.T) {
	got := unescapeValue([]byte("plain"))
	if !bytes.Equal(got, []byte("plain")) {
		t.Fatalf("got %q", got)
	}
}
