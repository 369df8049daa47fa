package gcp

import "testing"

func TestPublicURL(t *testing.T) {
	emu := ObjectStorageConfig{Mode: ObjectStorageModeGCSEmulator, EmulatorHost: "http://fake-gcs:4443/"}
	cases := []struct {
		name string
		cfg  BucketConfig
		key  string
		want string
	}{
		{"default", BucketConfig{Bucket: "chat-media", Storage: ObjectStorageConfig{Mode: ObjectStorageModeGCS}}, "chat/1/a-x.png", "https://storage.googleapis.com/chat-media/chat/1/a-x.png"},
		{"cdn wins", BucketConfig{Bucket: "chat-media", CDNDomain: "media.example.com", Storage: emu}, "/chat/1/a-x.png", "https://media.example.com/chat/1/a-x.png"},
		{"public base", BucketConfig{Bucket: "chat-media", PublicBaseURL: "https://files.example.com/", Storage: ObjectStorageConfig{Mode: ObjectStorageModeGCS}}, "k", "https://files.example.com/chat-media/k"},
		{"emulator", BucketConfig{Bucket: "chat-media", Storage: emu}, "chat/1/a-x.png", "http://fake-gcs:4443/storage/v1/b/chat-media/o/chat%2F1%2Fa-x.png?alt=media"},
		{"emulator with public base", BucketConfig{Bucket: "chat-media", PublicBaseURL: "http://localhost:4443", Storage: emu}, "k", "http://localhost:4443/storage/v1/b/chat-media/o/k?alt=media"},
	}
	for _, tc := range cases {
		if got := PublicURL(tc.cfg, tc.key); got != tc.want {
			t.Fatalf("%s: want=%q got=%q", tc.name, tc.want, got)
		}
	}
}
