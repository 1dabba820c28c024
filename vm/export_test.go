package vm

// StackPointer exposes sp to the external tests.
func (vm *VM) StackPointer() int {
	return vm.sp
}
