package service

import (
	"os"
	"testing"

	"github.com/sakif/runbroker/internal/executor/stubtool"
)

func TestMain(m *testing.M) {
	stubtool.RunIfRequested()
	os.Exit(m.Run())
}
