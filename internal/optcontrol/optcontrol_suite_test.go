package optcontrol_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestOptcontrol(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Optcontrol Suite")
}
