package unixcal

import "testing"

func TestSubtract(t *testing.T) {
	const now = int64(1_700_000_000_000)
	tests := []struct {
		unit   Unit
		amount int
		want   int64
	}{
		{Day, 7, now - 7*86_400_000},
		{Week, 4, now - 28*86_400_000},
		{Month, 6, now - 180*86_400_000},
		{Year, 3, now - 1095*86_400_000},
		{Day, 0, now},
	}
	for _, tt := range tests {
		t.Run(tt.unit.String(), func(t *testing.T) {
			if got := Subtract(now, tt.unit, tt.amount); got != tt.want {
				t.Errorf("Subtract(%d, %s, %d) = %d, want %d", now, tt.unit, tt.amount, got, tt.want)
			}
		})
	}
}

func TestAddInvertsSubtract(t *testing.T) {
	for _, u := range []Unit{Day, Week, Month, Year} {
		if got := Add(Subtract(5000, u, 2), u, 2); got != 5000 {
			t.Errorf("Add(Subtract(5000, %s, 2)) = %d, want 5000", u, got)
		}
	}
}

func TestUnknownUnitPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Millis on unknown unit should panic")
		}
	}()
	Unit(42).Millis()
}
