// Package lsp 提供 Language Server Protocol (LSP) 支持，
// 使 Agent 能够通过 LSP 协议与 IDE 和编辑器集成。
//
// 本包实现了 LSP 服务端和客户端，支持代码补全、诊断、
// 悬停提示等标准 LSP 功能。
package lsp
