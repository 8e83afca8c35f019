package graphql

import "testing"

func TestErrorCodesReadsExtensions(t *testing.T) {
	raw := []byte(`{"data":null,"errors":[
		{"message":"no token","extensions":{"code":"UNAUTHENTICATED"}},
		{"message":"no code"},
		{"message":"nope","extensions":{"code":"FORBIDDEN"}}
	]}`)
	got := ErrorCodes(raw)
	if len(got) != 2 || got[0] != "UNAUTHENTICATED" || got[1] != "FORBIDDEN" {
		t.Fatalf("ErrorCodes = %v", got)
	}
	if ErrorCodes([]byte(`{"data":{}}`)) != nil {
		t.Fatal("expected no codes without errors")
	}
}

func TestDecodeResponse(t *testing.T) {
	resp, err := DecodeResponse([]byte(`{"data":{"me":{"__typename":"User","privy_id":"p1"}},"errors":[{"message":"partial","path":["me","stats"],"extensions":{"code":"NOT_FOUND"}}]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.HasErrors() || resp.Errors[0].Code() != "NOT_FOUND" {
		t.Fatalf("errors = %+v", resp.Errors)
	}
	me, ok := resp.Data["me"].(map[string]any)
	if !ok || me["privy_id"] != "p1" {
		t.Fatalf("data = %+v", resp.Data)
	}
}

func TestDecodeResponseRejectsNonEnvelope(t *testing.T) {
	for _, raw := range []string{`<html>bad gateway</html>`, `{"message":"hi"}`} {
		if _, err := DecodeResponse([]byte(raw)); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestNewRequestCopiesVariables(t *testing.T) {
	vars := map[string]any{"limit": 20}
	req := NewRequest(Operation{Name: "Feed", Document: "query Feed { feed { items { id } } }"}, vars)
	vars["limit"] = 50
	if req.Variables["limit"] != 20 {
		t.Fatalf("variables aliased caller map: %v", req.Variables)
	}
	req.SetHeader("Authorization", "Bearer t")
	body := req.Body()
	if body.OperationName != "Feed" || body.Query == "" {
		t.Fatalf("body = %+v", body)
	}
}

func TestKindString(t *testing.T) {
	if KindQuery.String() != "query" || KindMutation.String() != "mutation" {
		t.Fatal("unexpected kind strings")
	}
}
