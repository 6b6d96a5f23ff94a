package textutil

import (
	"reflect"
	"testing"
)

func TestNormalizeStringMap(t *testing.T) {
	t.Run("trims and drops blanks", func(t *testing.T) {
		input := map[string]string{
			" user_id ":   " u-1 ",
			"coupon_code": " ",
			" ":           "ignored",
			"item_count":  "3",
		}
		expected := map[string]string{
			"user_id":    "u-1",
			"item_count": "3",
		}
		if actual := NormalizeStringMap(input); !reflect.DeepEqual(actual, expected) {
			t.Fatalf("expected %#v got %#v", expected, actual)
		}
	})

	t.Run("returns nil when nothing survives", func(t *testing.T) {
		if NormalizeStringMap(nil) != nil {
			t.Fatalf("expected nil for nil input")
		}
		if NormalizeStringMap(map[string]string{"coupon_code": ""}) != nil {
			t.Fatalf("expected nil when every value is blank")
		}
	})
}
