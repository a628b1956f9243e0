package replay

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const capture = `ip address,Latitude,Longitude,Timestamp,suspicious
10.0.0.3,48.85,2.35,1700000300,0
10.0.0.1,40.71,-74.00,1700000100,1.0
bad-row,not-a-number,2,3,0
10.0.0.2,35.68,139.69,1700000200,True
`

func TestReadCSV_SortsAndSkipsBadRows(t *testing.T) {
	recs, err := ReadCSV(strings.NewReader(capture))
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Fatalf("records = %d, want 3", len(recs))
	}

	wantIPs := []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}
	for i, ip := range wantIPs {
		if recs[i].IP != ip {
			t.Errorf("recs[%d].IP = %s, want %s", i, recs[i].IP, ip)
		}
	}
	if !recs[0].Suspicious || !recs[1].Suspicious || recs[2].Suspicious {
		t.Errorf("suspicious flags = %v %v %v", recs[0].Suspicious, recs[1].Suspicious, recs[2].Suspicious)
	}
	if recs[0].Latitude != 40.71 || recs[0].Longitude != -74.00 || recs[0].Timestamp != 1700000100 {
		t.Errorf("recs[0] = %+v", recs[0])
	}
}

func TestReadCSV_ColumnOrderAndCase(t *testing.T) {
	in := "SUSPICIOUS,timestamp,longitude,latitude,IP Address\nfalse,5,1,2,192.0.2.1\n"
	recs, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].IP != "192.0.2.1" || recs[0].Latitude != 2 || recs[0].Longitude != 1 {
		t.Errorf("records = %+v", recs)
	}
}

func TestReadCSV_MissingColumn(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("ip address,Latitude,Longitude,Timestamp\n1.2.3.4,1,2,3\n"))
	if err == nil || !strings.Contains(err.Error(), "suspicious") {
		t.Fatalf("err = %v, want missing suspicious column", err)
	}
}

func TestReadCSV_Empty(t *testing.T) {
	if _, err := ReadCSV(strings.NewReader("")); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ip_addresses.csv")
	if err := os.WriteFile(path, []byte(capture), 0o644); err != nil {
		t.Fatal(err)
	}
	recs, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Errorf("records = %d", len(recs))
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.csv")); err == nil {
		t.Error("expected error for missing file")
	}
}
