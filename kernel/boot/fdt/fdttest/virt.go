package fdttest

import "strconv"

// QEMU virt machine constants used by VirtMachine.
const (
	VirtRAMBase     = 0x80000000
	VirtRAMSize     = 0x8000000
	VirtFirmwareRsv = 0x40000
	VirtInitrdBase  = 0x88000000
	VirtInitrdSize  = 0x200000
)

// VirtMachine returns a blob shaped like the one QEMU generates for
// "-machine virt -smp cpus" with 128 MiB of RAM.
func VirtMachine(cpus int, bootargs string) []byte {
	var b Builder

	b.Reserve(VirtInitrdBase, VirtInitrdSize)

	b.BeginNode("").
		PropCells("#address-cells", 2).
		PropCells("#size-cells", 2).
		PropStrings("compatible", "riscv-virtio").
		PropStrings("model", "riscv-virtio,qemu")

	b.BeginNode("chosen")
	if bootargs != "" {
		b.PropStrings("bootargs", bootargs)
	}
	b.PropStrings("stdout-path", "/soc/serial@10000000").
		EndNode()

	b.BeginNode("memory@80000000").
		PropStrings("device_type", "memory").
		PropCells("reg", 0, VirtRAMBase, 0, VirtRAMSize).
		EndNode()

	b.BeginNode("reserved-memory").
		PropCells("#address-cells", 2).
		PropCells("#size-cells", 2).
		PropEmpty("ranges").
		BeginNode("mmode_resv0@80000000").
		PropCells("reg", 0, VirtRAMBase, 0, VirtFirmwareRsv).
		PropEmpty("no-map").
		EndNode().
		EndNode()

	b.BeginNode("cpus").
		PropCells("#address-cells", 1).
		PropCells("#size-cells", 0).
		PropCells("timebase-frequency", 10000000)
	for i := 0; i < cpus; i++ {
		b.BeginNode(cpuNodeName(i)).
			PropStrings("device_type", "cpu").
			PropCells("reg", uint32(i)).
			PropStrings("status", "okay").
			PropStrings("compatible", "riscv").
			PropStrings("riscv,isa", "rv64imafdc").
			PropStrings("mmu-type", "riscv,sv48").
			EndNode()
	}
	b.BeginNode("cpu-map").EndNode()
	b.EndNode()

	b.Nop()

	b.BeginNode("soc").
		PropCells("#address-cells", 2).
		PropCells("#size-cells", 2).
		PropStrings("compatible", "simple-bus").
		PropEmpty("ranges").
		BeginNode("serial@10000000").
		PropCells("interrupts", 10).
		PropCells("clock-frequency", 0x384000).
		PropCells("reg", 0, 0x10000000, 0, 0x100).
		PropStrings("compatible", "ns16550a").
		EndNode().
		BeginNode("virtio_mmio@10001000").
		PropCells("reg", 0, 0x10001000, 0, 0x1000).
		PropStrings("compatible", "virtio,mmio").
		EndNode().
		BeginNode("plic@c000000").
		PropCells("reg", 0, 0xc000000, 0, 0x600000).
		PropStrings("compatible", "sifive,plic-1.0.0", "riscv,plic0").
		EndNode().
		EndNode()

	b.EndNode()
	return b.Bytes()
}

func cpuNodeName(i int) string {
	return "cpu@" + strconv.FormatInt(int64(i), 16)
}
