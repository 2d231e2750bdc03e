package connection

import "testing"

func TestNew_RequiresHostPathOrURI(t *testing.T) {
	_, err := New(GET, "", "", "", "")
	if err == nil {
		t.Fatalf("expected error when neither uri nor host/path is given")
	}
}

func TestNew_DefaultsMethodAndProtocol(t *testing.T) {
	c, err := New("", "", "api.example.com", "/v1/items", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Method != GET {
		t.Fatalf("expected default method GET, got %s", c.Method)
	}
	if c.Protocol != HTTPS {
		t.Fatalf("expected default protocol https, got %s", c.Protocol)
	}
}

func TestNew_HostLowercased(t *testing.T) {
	c, err := New(GET, HTTPS, "API.Example.COM", "/x", "")
	if err != nil {
		t.Fatal(err)
	}
	if c.Host != "api.example.com" {
		t.Fatalf("expected lowercased host, got %s", c.Host)
	}
}

func TestNew_FromURI(t *testing.T) {
	c, err := New(GET, "", "", "", "https://api.example.net/games/")
	if err != nil {
		t.Fatal(err)
	}
	if c.Host != "api.example.net" || c.Path != "/games/" || c.Protocol != HTTPS {
		t.Fatalf("unexpected parse: %+v", c)
	}
}

func TestNew_RejectsUnsupportedMethod(t *testing.T) {
	_, err := New(Method("TRACE"), HTTPS, "h", "/p", "")
	if err == nil {
		t.Fatalf("expected error for unsupported method")
	}
}

func TestNew_TimeoutCoercion(t *testing.T) {
	c, err := New(GET, HTTPS, "h", "/p", "")
	if err != nil {
		t.Fatal(err)
	}
	c.Options.TimeoutMS = -5
	if c.Options.TimeoutMS != -5 {
		t.Fatalf("sanity")
	}
	// Coercion happens at construction time; verify the default path.
	c2, _ := New(GET, HTTPS, "h", "/p", "")
	if c2.Options.TimeoutMS != 8000 {
		t.Fatalf("expected default timeout 8000, got %d", c2.Options.TimeoutMS)
	}
}

func TestToObject_BasicAuth(t *testing.T) {
	c, _ := New(GET, HTTPS, "h", "/p", "")
	c.Authentication = &Authentication{Basic: &Basic{User: "snoopy", Pass: "W00dstock1966"}}

	v := c.ToObject()
	if v.Headers["Authorization"] != "Basic c25vb3B5OlcwMGRzdG9jazE5NjY=" {
		t.Fatalf("unexpected Authorization header: %s", v.Headers["Authorization"])
	}
	if c.Headers["Authorization"] != "" {
		t.Fatalf("original connection must not be mutated")
	}
}

func TestToObject_AuthParametersOverrideCaller(t *testing.T) {
	c, _ := New(GET, HTTPS, "h", "/p", "")
	c.Parameters = map[string]interface{}{"token": "caller"}
	c.Authentication = &Authentication{Parameters: map[string]interface{}{"token": "auth"}}

	v := c.ToObject()
	if v.Parameters["token"] != "auth" {
		t.Fatalf("expected auth parameter to override, got %v", v.Parameters["token"])
	}
	if c.Parameters["token"] != "caller" {
		t.Fatalf("original connection must not be mutated")
	}
}

func TestToObject_AuthBodyReplacesStringBody(t *testing.T) {
	c, _ := New(POST, HTTPS, "h", "/p", "")
	c.Body = "raw-caller-body"
	c.Authentication = &Authentication{Body: map[string]interface{}{"apiKey": "x"}}

	v := c.ToObject()
	if v.Body.(map[string]interface{})["apiKey"] != "x" {
		t.Fatalf("expected auth body to replace string body")
	}
}

func TestToObject_AuthBodyMergesMapBody(t *testing.T) {
	c, _ := New(POST, HTTPS, "h", "/p", "")
	c.Body = map[string]interface{}{"a": 1}
	c.Authentication = &Authentication{Body: map[string]interface{}{"b": 2}}

	v := c.ToObject()
	merged := v.Body.(map[string]interface{})
	if merged["a"] != 1 || merged["b"] != 2 {
		t.Fatalf("expected shallow merge, got %v", merged)
	}
}

func TestToString_NullQuirkPreserved(t *testing.T) {
	c, _ := New(GET, HTTPS, "h", "/p", "")
	got := c.ToString()
	want := "GET null https://h/p"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestCacheProfileFromMap_AliasKeys(t *testing.T) {
	p := CacheProfileFromMap(map[string]interface{}{
		"defaultExpiresInSeconds":   3600,
		"expiresIsOnInterval":       true,
		"ignoreOriginHeaderExpires": true,
	})
	if p.DefaultExpirationInSeconds != 3600 || !p.ExpirationIsOnInterval || !p.OverrideOriginHeaderExpiration {
		t.Fatalf("alias keys not honored: %+v", p)
	}
}

func TestCacheInitFromMap_RequiresSmallTableID(t *testing.T) {
	_, err := CacheInitFromMap(map[string]interface{}{})
	if err == nil {
		t.Fatalf("expected error for missing small-table id")
	}
}

func TestCacheInitFromMap_ScenarioS6(t *testing.T) {
	ci, err := CacheInitFromMap(map[string]interface{}{
		"smallTableId":         "T",
		"objectStoreId":        "B",
		"cipher":               "aes-256-cbc",
		"key":                  make([]byte, 32),
		"timezone":             "America/Chicago",
		"DynamoDbMaxCacheSize_kb": 10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	info := ci.Info()
	if info.SmallTableID != "T" || info.ObjectStoreID != "B" || info.CipherID != "aes-256-cbc" {
		t.Fatalf("unexpected info: %+v", info)
	}
	if info.SmallTableMaxSizeKB != 10 {
		t.Fatalf("expected small table max size 10, got %d", info.SmallTableMaxSizeKB)
	}
	if info.Key != "************** [buffer]" {
		t.Fatalf("expected masked key, got %q", info.Key)
	}
}
