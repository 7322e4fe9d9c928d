//go:build linux

package probe

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

const capNetRaw = 13

// Variables for mocking in tests.
var (
	geteuid    = os.Geteuid
	openStatus = func() (io.ReadCloser, error) { return os.Open("/proc/self/status") }
)

// CheckRawPrivileges reports whether the process may open raw ICMP sockets:
// it runs as root or holds CAP_NET_RAW in its effective set.
func CheckRawPrivileges() error {
	if geteuid() == 0 {
		return nil
	}
	f, err := openStatus()
	if err != nil {
		return err
	}
	defer f.Close()

	eff, err := effectiveCaps(f)
	if err != nil {
		return err
	}
	if eff&(1<<capNetRaw) == 0 {
		return fmt.Errorf("%w: CAP_NET_RAW not in effective set (grant with: setcap cap_net_raw+ep <binary>)", ErrPermissionDenied)
	}
	return nil
}

func effectiveCaps(r io.Reader) (uint64, error) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) >= 2 && fields[0] == "CapEff:" {
			return strconv.ParseUint(fields[1], 16, 64)
		}
	}
	if err := sc.Err(); err != nil {
		return 0, err
	}
	return 0, errors.New("CapEff not found in process status")
}
