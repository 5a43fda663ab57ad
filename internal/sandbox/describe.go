package sandbox

// DescribeDatasetCode prints an overview of the uploaded dataset: shape,
// columns, dtypes with missing counts, memory use and a short preview.
const DescribeDatasetCode = `import pandas as pd
import numpy as np

df = pd.read_csv('data.csv')

info = {
    'shape': df.shape,
    'columns': list(df.columns),
    'dtypes': df.dtypes.to_dict(),
    'missing_values': df.isnull().sum().to_dict(),
    'memory_usage': df.memory_usage(deep=True).sum()
}

print("DATASET OVERVIEW:")
print(f"   Shape: {info['shape'][0]} rows x {info['shape'][1]} columns")
print(f"   Columns: {', '.join(info['columns'])}")
print(f"   Memory: {info['memory_usage'] / 1024:.1f} KB")

print("\nDATA TYPES:")
for col, dtype in info['dtypes'].items():
    missing = info['missing_values'][col]
    missing_pct = (missing / info['shape'][0]) * 100 if info['shape'][0] > 0 else 0
    print(f"   {col}: {dtype} (Missing: {missing}/{missing_pct:.1f}%)")

print("\nPREVIEW (First 3 rows):")
print(df.head(3).to_string())
`
