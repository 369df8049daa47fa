package gcp

import "testing"

func TestResolveObjectStorageConfigFromEnv(t *testing.T) {
	cases := []struct {
		mode, host   string
		want         ObjectStorageMode
		wantInferred bool
		wantErr      bool
	}{
		{mode: "", host: "", want: ObjectStorageModeGCS},
		{mode: "gcs", host: "http://fake-gcs:4443", want: ObjectStorageModeGCS},
		{mode: "GCS_EMULATOR", host: "http://fake-gcs:4443", want: ObjectStorageModeGCSEmulator},
		{mode: "", host: "http://fake-gcs:4443", want: ObjectStorageModeGCSEmulator, wantInferred: true},
		{mode: "gcs_emulator", host: "", wantErr: true},
		{mode: "gcs_emulator", host: "fake-gcs", wantErr: true},
		{mode: "s3", host: "", wantErr: true},
	}
	for _, tc := range cases {
		t.Setenv("OBJECT_STORAGE_MODE", tc.mode)
		t.Setenv("STORAGE_EMULATOR_HOST", tc.host)
		cfg, err := ResolveObjectStorageConfigFromEnv()
		if tc.wantErr {
			if err == nil {
				t.Fatalf("mode=%q host=%q: expected error", tc.mode, tc.host)
			}
			continue
		}
		if err != nil {
			t.Fatalf("mode=%q host=%q: %v", tc.mode, tc.host, err)
		}
		if cfg.Mode != tc.want || cfg.Inferred != tc.wantInferred {
			t.Fatalf("mode=%q host=%q: want=%q/%v got=%q/%v", tc.mode, tc.host, tc.want, tc.wantInferred, cfg.Mode, cfg.Inferred)
		}
	}
}
