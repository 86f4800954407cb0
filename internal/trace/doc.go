// Package trace loads and parses CPU execution trace logs.
//
// A trace line records the CPU state immediately before one instruction
// executes. The format shared by the reference log and the emulator under
// test is the nestest.log layout:
//
//	C000  4C F5 C5  JMP $C5F5       A:00 X:00 Y:00 P:24 SP:FD PPU:  0, 21 CYC:7
//
// Only the program counter, the A/X/Y/P/SP registers and the CYC counter are
// extracted. Everything between them (opcode bytes, disassembly, PPU
// position) is free text and never inspected.
//
// Values are compared as strings. Case and zero-padding are therefore part
// of the contract: "A:0a" does not parse and "CYC:07" differs from "CYC:7".
package trace
