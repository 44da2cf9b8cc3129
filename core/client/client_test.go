package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	fp "path/filepath"
	"testing"
	"time"

	ds "github.com/ipfs/go-datastore"
	"github.com/pyropy/udfs/core/constants"
	"github.com/pyropy/udfs/core/node"
	"github.com/pyropy/udfs/lib/checksum"
)

type cluster struct {
	dialect   string
	servers   [constants.NODE_COUNT]*node.Server
	endpoints [constants.NODE_COUNT]Endpoint
}

func startCluster(t *testing.T, dialect string) *cluster {
	t.Helper()
	c := &cluster{dialect: dialect}

	for i := range c.servers {
		cfg := &node.Config{}
		cfg.Server.Host = "127.0.0.1"
		cfg.Server.Port = 1
		cfg.Chunks.Path = fp.Join(t.TempDir(), fmt.Sprintf("dfs%d", i+1))
		cfg.Protocol.Dialect = dialect
		cfg.Protocol.MaxCommandBytes = constants.DEFAULT_MAX_COMMAND_BYTES
		cfg.Protocol.MaxChunkBytes = 1 << 20
		cfg.Protocol.MaxListBytes = 1 << 16
		cfg.Log.Level = "error"

		server, err := node.NewServer(cfg)
		if err != nil {
			t.Fatalf("NewServer: %v", err)
		}

		l, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("Listen: %v", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = server.Serve(ctx, l)
		}()
		t.Cleanup(func() {
			cancel()
			<-done
		})

		c.servers[i] = server
		c.endpoints[i] = Endpoint{Name: fmt.Sprintf("dfs%d", i+1), Addr: l.Addr().String()}
	}

	return c
}

func (c *cluster) settings(t *testing.T) *Settings {
	t.Helper()
	return &Settings{
		OutputDir:    t.TempDir(),
		ManifestPath: fp.Join(t.TempDir(), "manifest"),
		Protocol:     c.dialect,
		LogLevel:     "error",
	}
}

func newTestClient(t *testing.T, s *Settings, endpoints [constants.NODE_COUNT]Endpoint) *Client {
	t.Helper()
	client, err := NewClient(context.Background(), s, endpoints)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	return client
}

// barrier waits until every node has handled the commands already sent on
// client's connections; nodes answer one connection's commands in order.
func barrier(t *testing.T, client *Client) {
	t.Helper()
	if _, err := client.List(context.Background()); err != nil {
		t.Fatalf("List: %v", err)
	}
}

func TestPutGetEndToEnd(t *testing.T) {
	for _, dialect := range []string{"native", "portable"} {
		t.Run(dialect, func(t *testing.T) {
			c := startCluster(t, dialect)
			s := c.settings(t)
			client := newTestClient(t, s, c.endpoints)

			src := fp.Join(t.TempDir(), "b.bin")
			content := []byte("0123456789")
			if err := os.WriteFile(src, content, 0o600); err != nil {
				t.Fatal(err)
			}

			ctx := context.Background()
			if err := client.Put(ctx, src); err != nil {
				t.Fatalf("Put: %v", err)
			}
			barrier(t, client)

			// b.bin is bucket 2: sizes [3,3,2,2], routes (2,1),(3,2),(0,3),(1,0).
			chunks := []string{"012", "345", "67", "89"}
			routes := [][2]int{{2, 1}, {3, 2}, {0, 3}, {1, 0}}
			for i, r := range routes {
				for _, n := range r {
					got, err := c.servers[n].ReadChunk("b.bin", i)
					if err != nil || string(got) != chunks[i] {
						t.Fatalf("node %d chunk %d = %q, %v; want %q", n, i, got, err, chunks[i])
					}
				}
			}
			for n, server := range c.servers {
				indices, err := server.ChunkIndices("b.bin")
				if err != nil || len(indices) != constants.REPLICATION_FACTOR {
					t.Fatalf("node %d holds %v, %v", n, indices, err)
				}
			}

			if err := client.Get(ctx, "b.bin"); err != nil {
				t.Fatalf("Get: %v", err)
			}

			got, err := os.ReadFile(fp.Join(s.OutputDir, "b.bin"))
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, content) {
				t.Fatalf("reconstructed %q, want %q", got, content)
			}
			if _, err := os.Stat(fp.Join(s.OutputDir, "b.bin.dir")); !os.IsNotExist(err) {
				t.Fatalf("staging directory left behind: %v", err)
			}

			entries, err := client.List(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if len(entries) != 1 || entries[0].String() != "b.bin" {
				t.Fatalf("List = %v", entries)
			}
		})
	}
}

func TestPutRecordsManifest(t *testing.T) {
	c := startCluster(t, "portable")
	s := c.settings(t)
	client := newTestClient(t, s, c.endpoints)

	src := fp.Join(t.TempDir(), "report.txt")
	content := bytes.Repeat([]byte("quarterly numbers\n"), 500)
	if err := os.WriteFile(src, content, 0o600); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := client.Put(ctx, src); err != nil {
		t.Fatalf("Put: %v", err)
	}

	m, err := client.manifests.Get(ctx, "report.txt")
	if err != nil {
		t.Fatalf("manifest Get: %v", err)
	}
	if m.Size != int64(len(content)) || m.Digest != checksum.CalculateCheckSum(content) || m.HashBucket != 3 {
		t.Fatalf("manifest = %+v", m)
	}

	if err := client.Get(ctx, "report.txt"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	digest, err := checksum.CalculateFileCheckSum(fp.Join(s.OutputDir, "report.txt"))
	if err != nil || digest != m.Digest {
		t.Fatalf("reconstructed digest %s, %v; want %s", digest, err, m.Digest)
	}
}

func TestPutEmptyFile(t *testing.T) {
	c := startCluster(t, "native")
	s := c.settings(t)
	client := newTestClient(t, s, c.endpoints)

	src := fp.Join(t.TempDir(), "empty")
	if err := os.WriteFile(src, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := client.Put(ctx, src); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := client.Get(ctx, "empty"); err != nil {
		t.Fatalf("Get: %v", err)
	}

	fi, err := os.Stat(fp.Join(s.OutputDir, "empty"))
	if err != nil || fi.Size() != 0 {
		t.Fatalf("reconstructed empty file: %v, %v", fi, err)
	}
}

func TestPutRequiresEveryNode(t *testing.T) {
	c := startCluster(t, "native")
	endpoints := c.endpoints
	endpoints[3] = Endpoint{Name: "dfs4", Err: ErrBadEndpoint}

	client := newTestClient(t, c.settings(t), endpoints)
	if client.Slots[3].Connected() || client.Slots[3].Err == nil {
		t.Fatalf("slot 3 = %+v, want absent", client.Slots[3])
	}

	src := fp.Join(t.TempDir(), "a.txt")
	if err := os.WriteFile(src, []byte("hello"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := client.Put(context.Background(), src); !errors.Is(err, ErrPutPreconditions) {
		t.Fatalf("Put err = %v, want ErrPutPreconditions", err)
	}

	barrier(t, client)
	for n := 0; n < 3; n++ {
		if _, err := c.servers[n].ChunkIndices("a.txt"); !errors.Is(err, node.ErrFileDoesNotExist) {
			t.Fatalf("node %d received chunks: %v", n, err)
		}
	}
}

func TestPutMissingLocalFile(t *testing.T) {
	c := startCluster(t, "native")
	client := newTestClient(t, c.settings(t), c.endpoints)

	err := client.Put(context.Background(), fp.Join(t.TempDir(), "nope.txt"))
	if !errors.Is(err, ErrPutPreconditions) {
		t.Fatalf("Put err = %v, want ErrPutPreconditions", err)
	}
}

func TestPutFailedSendIsReported(t *testing.T) {
	c := startCluster(t, "native")
	client := newTestClient(t, c.settings(t), c.endpoints)

	src := fp.Join(t.TempDir(), "a.txt")
	if err := os.WriteFile(src, []byte("hello world"), 0o600); err != nil {
		t.Fatal(err)
	}

	// Node 1's connection goes away after the precondition check would pass.
	client.Slots[1].conn.Close()

	err := client.Put(context.Background(), src)
	if !errors.Is(err, ErrPutFailed) {
		t.Fatalf("Put err = %v, want ErrPutFailed", err)
	}

	// The other nodes still received their chunks. a.txt is bucket 0, so
	// node 0 holds chunks 0 and 1.
	barrier(t, client)
	indices, err := c.servers[0].ChunkIndices("a.txt")
	if err != nil || len(indices) != 2 {
		t.Fatalf("node 0 holds %v, %v", indices, err)
	}

	if _, err := client.manifests.Get(context.Background(), "a.txt"); !errors.Is(err, ds.ErrNotFound) {
		t.Fatalf("failed put recorded a manifest: %v", err)
	}
}

// seed writes chunks for filename straight into a node's store.
func seed(t *testing.T, server *node.Server, filename string, chunks map[int]string) {
	t.Helper()
	for i, data := range chunks {
		if err := server.WriteChunk(filename, i, []byte(data)); err != nil {
			t.Fatal(err)
		}
	}
}

func TestGetStopsAtFirstMiss(t *testing.T) {
	for _, dialect := range []string{"native", "portable"} {
		t.Run(dialect, func(t *testing.T) {
			c := startCluster(t, dialect)
			seed(t, c.servers[1], "F", map[int]string{0: "a", 1: "b", 2: "c", 3: "d"})

			s := c.settings(t)
			client := newTestClient(t, s, c.endpoints)

			if err := client.Get(context.Background(), "F"); !errors.Is(err, ErrIncomplete) {
				t.Fatalf("Get err = %v, want ErrIncomplete", err)
			}
			if _, err := os.Stat(fp.Join(s.OutputDir, "F")); !os.IsNotExist(err) {
				t.Fatalf("incomplete get wrote output: %v", err)
			}
			if _, err := os.Stat(fp.Join(s.OutputDir, "F.dir")); !os.IsNotExist(err) {
				t.Fatalf("staging directory left behind: %v", err)
			}
		})
	}
}

func TestGetProbeAllSkipsMisses(t *testing.T) {
	c := startCluster(t, "portable")
	seed(t, c.servers[1], "F", map[int]string{0: "a", 1: "b", 2: "c", 3: "d"})

	s := c.settings(t)
	s.ProbeAll = true
	client := newTestClient(t, s, c.endpoints)

	if err := client.Get(context.Background(), "F"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	got, err := os.ReadFile(fp.Join(s.OutputDir, "F"))
	if err != nil || string(got) != "abcd" {
		t.Fatalf("reconstructed %q, %v", got, err)
	}
}

func TestGetCombinesNodes(t *testing.T) {
	c := startCluster(t, "native")
	seed(t, c.servers[0], "G", map[int]string{2: "cc", 3: "d"})
	seed(t, c.servers[1], "G", map[int]string{0: "aa", 3: "d"})
	seed(t, c.servers[2], "G", map[int]string{1: "bb", 0: "aa"})

	s := c.settings(t)
	client := newTestClient(t, s, c.endpoints)

	if err := client.Get(context.Background(), "G"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	got, err := os.ReadFile(fp.Join(s.OutputDir, "G"))
	if err != nil || string(got) != "aabbccd" {
		t.Fatalf("reconstructed %q, %v", got, err)
	}
}

func TestNativeGetStaysFrameAligned(t *testing.T) {
	c := startCluster(t, "native")
	seed(t, c.servers[1], "F", map[int]string{0: "a", 1: "b", 2: "c", 3: "d"})

	s := c.settings(t)
	s.ProbeAll = true
	client := newTestClient(t, s, c.endpoints)

	src := fp.Join(t.TempDir(), "H")
	if err := os.WriteFile(src, []byte("HH0HH1HH2HH3"), 0o600); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := client.Put(ctx, src); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// Node 1 only answers with two of F's chunks, and nobody else has F.
	if err := client.Get(ctx, "F"); !errors.Is(err, ErrIncomplete) {
		t.Fatalf("Get(F) err = %v, want ErrIncomplete", err)
	}

	if err := client.Get(ctx, "H"); err != nil {
		t.Fatalf("Get(H): %v", err)
	}
	got, err := os.ReadFile(fp.Join(s.OutputDir, "H"))
	if err != nil || string(got) != "HH0HH1HH2HH3" {
		t.Fatalf("Get(H) wrote %q, %v", got, err)
	}
}

func TestNativeGetSingleChunkNode(t *testing.T) {
	c := startCluster(t, "native")
	seed(t, c.servers[0], "G", map[int]string{2: "c"})
	seed(t, c.servers[1], "G", map[int]string{0: "a", 1: "b"})
	seed(t, c.servers[2], "G", map[int]string{3: "d"})

	s := c.settings(t)
	client := newTestClient(t, s, c.endpoints)

	done := make(chan error, 1)
	go func() { done <- client.Get(context.Background(), "G") }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Get blocked on a node holding a single chunk")
	}

	got, err := os.ReadFile(fp.Join(s.OutputDir, "G"))
	if err != nil || string(got) != "abcd" {
		t.Fatalf("reconstructed %q, %v", got, err)
	}
}

func TestGetMissingEverywhere(t *testing.T) {
	c := startCluster(t, "portable")
	s := c.settings(t)
	s.ProbeAll = true
	client := newTestClient(t, s, c.endpoints)

	if err := client.Get(context.Background(), "ghost"); !errors.Is(err, ErrIncomplete) {
		t.Fatalf("Get err = %v, want ErrIncomplete", err)
	}
	if err := client.Get(context.Background(), "../ghost"); !errors.Is(err, ErrIncomplete) {
		t.Fatalf("Get with path err = %v, want ErrIncomplete", err)
	}
}

func TestListMergesNodes(t *testing.T) {
	c := startCluster(t, "native")
	seed(t, c.servers[0], "whole", map[int]string{0: "a", 1: "b"})
	seed(t, c.servers[3], "whole", map[int]string{1: "b", 2: "c", 3: "d"})
	seed(t, c.servers[2], "half", map[int]string{0: "a", 1: "b"})
	seed(t, c.servers[3], "half", map[int]string{0: "a"})

	endpoints := c.endpoints
	client := newTestClient(t, c.settings(t), endpoints)

	entries, err := client.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	var lines []string
	for _, e := range entries {
		lines = append(lines, e.String())
	}
	if fmt.Sprint(lines) != "[half [incomplete] whole]" {
		t.Fatalf("List = %q", lines)
	}

	// Without node 3 the whole file is missing chunks 2 and 3.
	endpoints[3] = Endpoint{Name: "dfs4", Err: ErrBadEndpoint}
	client = newTestClient(t, c.settings(t), endpoints)
	entries, err = client.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[1].Filename != "whole" || entries[1].Complete() {
		t.Fatalf("List without node 3 = %v", entries)
	}
}

func TestCloseSendsExit(t *testing.T) {
	c := startCluster(t, "native")
	client, err := NewClient(context.Background(), c.settings(t), c.endpoints)
	if err != nil {
		t.Fatal(err)
	}
	barrier(t, client)

	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for _, server := range c.servers {
		for server.OpenConnections() > 0 {
			if time.Now().After(deadline) {
				t.Fatalf("node still has %d connections", server.OpenConnections())
			}
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func TestDialMarksUnreachableSlotAbsent(t *testing.T) {
	c := startCluster(t, "native")

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	dead := l.Addr().String()
	l.Close()

	endpoints := c.endpoints
	endpoints[0] = Endpoint{Name: "dfs1", Addr: dead}

	s := c.settings(t)
	s.DialTimeout = time.Second
	client := newTestClient(t, s, endpoints)

	if client.Slots[0].Connected() || client.Slots[0].Err == nil {
		t.Fatalf("slot 0 = %+v, want absent", client.Slots[0])
	}
	for i := 1; i < constants.NODE_COUNT; i++ {
		if !client.Slots[i].Connected() {
			t.Fatalf("slot %d absent: %v", i, client.Slots[i].Err)
		}
	}
}
