package proc

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const tcpListen = "0A"

// ListeningPIDs returns the pids holding a listening TCP socket on port (v4 or v6).
func ListeningPIDs(port int) ([]int, error) {
	return listeningPIDs("/proc", port)
}

func listeningPIDs(root string, port int) ([]int, error) {
	inodes := map[string]struct{}{}
	found := false
	for _, table := range []string{"net/tcp", "net/tcp6"} {
		err := scanListenInodes(filepath.Join(root, table), port, inodes)
		if err == nil {
			found = true
			continue
		}
		if !os.IsNotExist(errors.Cause(err)) {
			return nil, err
		}
	}
	if !found {
		return nil, errors.New("no tcp tables under " + root)
	}
	if len(inodes) == 0 {
		return nil, nil
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, errors.Wrap(err, "read proc root")
	}
	var pids []int
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil || !e.IsDir() {
			continue
		}
		if ownsInode(filepath.Join(root, e.Name(), "fd"), inodes) {
			pids = append(pids, pid)
		}
	}
	sort.Ints(pids)
	return pids, nil
}

func scanListenInodes(path string, port int, into map[string]struct{}) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open "+path)
	}
	defer func() { _ = f.Close() }()

	want := strings.ToUpper(strconv.FormatInt(int64(port), 16))
	for len(want) < 4 {
		want = "0" + want
	}

	sc := bufio.NewScanner(f)
	sc.Scan() // header
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 10 || fields[3] != tcpListen {
			continue
		}
		_, localPort, ok := strings.Cut(fields[1], ":")
		if !ok || localPort != want {
			continue
		}
		if fields[9] != "0" {
			into[fields[9]] = struct{}{}
		}
	}
	return errors.Wrap(sc.Err(), "scan "+path)
}

func ownsInode(fdDir string, inodes map[string]struct{}) bool {
	fds, err := os.ReadDir(fdDir)
	if err != nil {
		return false
	}
	for _, fd := range fds {
		target, err := os.Readlink(filepath.Join(fdDir, fd.Name()))
		if err != nil || !strings.HasPrefix(target, "socket:[") {
			continue
		}
		inode := strings.TrimSuffix(strings.TrimPrefix(target, "socket:["), "]")
		if _, ok := inodes[inode]; ok {
			return true
		}
	}
	return false
}
